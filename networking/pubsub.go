package networking

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/golang/snappy"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/host"
)

// SummaryTopic returns the round summary topic of a network:
// /attester/<network>/round_summary/ssz_snappy.
func SummaryTopic(network string) string {
	return "/attester/" + network + "/round_summary/ssz_snappy"
}

// Message domains for gossipsub message ID computation.
var (
	messageDomainInvalidSnappy = [4]byte{0x00, 0x00, 0x00, 0x00}
	messageDomainValidSnappy   = [4]byte{0x01, 0x00, 0x00, 0x00}
)

// NewGossipSub creates a gossipsub router. seenTTL should cover the time a
// summary stays interesting, about two epochs.
func NewGossipSub(ctx context.Context, h host.Host, seenTTL time.Duration) (*pubsub.PubSub, error) {
	params := pubsub.DefaultGossipSubParams()
	params.D = 6
	params.Dlo = 4
	params.Dhi = 9
	params.Dlazy = 6
	params.HeartbeatInterval = 700 * time.Millisecond
	params.FanoutTTL = 60 * time.Second
	params.HistoryLength = 6
	params.HistoryGossip = 3

	return pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageIdFn(messageID),
		pubsub.WithGossipSubParams(params),
		pubsub.WithSeenMessagesTTL(seenTTL),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign),
		pubsub.WithFloodPublish(false),
	)
}

func messageID(msg *pb.Message) string {
	decoded, err := snappy.Decode(nil, msg.Data)
	if err != nil {
		id := ComputeMessageID([]byte(msg.GetTopic()), msg.Data, false)
		return string(id[:])
	}
	id := ComputeMessageID([]byte(msg.GetTopic()), decoded, true)
	return string(id[:])
}

// MessageID is a 20-byte gossipsub message identifier.
type MessageID [20]byte

// ComputeMessageID hashes SHA256(domain ++ uint64_le(len(topic)) ++ topic ++ data)
// and keeps the first 20 bytes. The domain tells apart payloads that were
// and were not valid snappy.
func ComputeMessageID(topic, data []byte, snappyValid bool) MessageID {
	domain := messageDomainInvalidSnappy
	if snappyValid {
		domain = messageDomainValidSnappy
	}
	var topicLen [8]byte
	binary.LittleEndian.PutUint64(topicLen[:], uint64(len(topic)))

	h := sha256.New()
	h.Write(domain[:])
	h.Write(topicLen[:])
	h.Write(topic)
	h.Write(data)

	var id MessageID
	copy(id[:], h.Sum(nil))
	return id
}

func CompressMessage(data []byte) []byte {
	return snappy.Encode(nil, data)
}

func DecompressMessage(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
