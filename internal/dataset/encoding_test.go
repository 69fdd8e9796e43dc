package dataset

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEncodingUTF8(t *testing.T) {
	assert.Equal(t, EncodingUTF8, DetectEncoding([]byte("plain ascii"), true))
	assert.Equal(t, EncodingUTF8, DetectEncoding([]byte("caf\xc3\xa9"), true))
	assert.Equal(t, EncodingUTF8, DetectEncoding([]byte("\xef\xbb\xbfhello"), true))
}

func TestDetectEncodingCutRune(t *testing.T) {
	// sniff window ending in the middle of a two byte rune
	sample := []byte("caf\xc3")
	assert.Equal(t, EncodingUTF8, DetectEncoding(sample, false))
	assert.NotEqual(t, EncodingUTF8, DetectEncoding(sample, true))
}

func TestUTF8ReaderStripsBOM(t *testing.T) {
	r, enc, err := NewUTF8Reader(strings.NewReader("\xef\xbb\xbfPROJECT_ID,FILE"))
	require.NoError(t, err)
	assert.Equal(t, EncodingUTF8, enc)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "PROJECT_ID,FILE", string(data))
}

func TestUTF8ReaderDecodesSingleByte(t *testing.T) {
	input := "org.apache:maven,pom.xml,abc,2020-01-01,Jos\xe9 Mu\xf1oz,1,1,r\xe9sum\xe9 fix\n"

	r, enc, err := NewUTF8Reader(strings.NewReader(input))
	require.NoError(t, err)
	assert.NotEqual(t, EncodingUTF8, enc)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), "José Muñoz")
	assert.Contains(t, string(data), "résumé fix")
}
