package graphapi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

// ComfyUI never writes chunks anywhere near this size; anything larger is a corrupt length
const maxTextChunk = 64 << 20

// GetPngMetadata returns the keyword/text pairs of every tEXt chunk in a PNG stream.
// ComfyUI stores the API format graph under "prompt" and the UI graph under "workflow".
func GetPngMetadata(r io.Reader) (map[string]string, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, errors.New("not a valid PNG file")
	}

	texts := make(map[string]string)
	var hdr [8]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF {
				// tolerate streams truncated after the last full chunk
				return texts, nil
			}
			return nil, err
		}
		length := binary.BigEndian.Uint32(hdr[:4])
		kind := string(hdr[4:])

		switch kind {
		case "IEND":
			return texts, nil
		case "tEXt":
			if length > maxTextChunk {
				return nil, fmt.Errorf("tEXt chunk too large (%d bytes)", length)
			}
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, err
			}
			sep := bytes.IndexByte(data, 0)
			if sep < 0 {
				return nil, errors.New("malformed tEXt chunk")
			}
			texts[string(data[:sep])] = string(data[sep+1:])
		default:
			if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
				return nil, err
			}
		}

		// crc
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return nil, err
		}
	}
}
