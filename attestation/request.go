package attestation

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/types"
)

// Request header layout: attestation type (2 bytes), source id (4 bytes),
// message integrity code (32 bytes), then type specific fields.
const (
	typeBytes   = 2
	sourceBytes = 4
	micBytes    = 32

	HeaderSize = typeBytes + sourceBytes + micBytes
)

// Header is the common prefix of every attestation request.
type Header struct {
	Type   types.AttestationType
	Source types.SourceID
	MIC    common.Hash
}

// ParseHeader decodes the request header.
func ParseHeader(request []byte) (Header, error) {
	if len(request) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortRequest, len(request))
	}
	h := Header{
		Type:   types.AttestationType(binary.BigEndian.Uint16(request[:typeBytes])),
		Source: types.SourceID(binary.BigEndian.Uint32(request[typeBytes : typeBytes+sourceBytes])),
	}
	copy(h.MIC[:], request[typeBytes+sourceBytes:HeaderSize])
	return h, nil
}

// EncodeHeader writes the header followed by body.
func EncodeHeader(h Header, body []byte) []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint16(out[:typeBytes], uint16(h.Type))
	binary.BigEndian.PutUint32(out[typeBytes:typeBytes+sourceBytes], uint32(h.Source))
	copy(out[typeBytes+sourceBytes:], h.MIC[:])
	return append(out, body...)
}
