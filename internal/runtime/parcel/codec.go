package parcel

import (
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	idspkg "github.com/drblury/parcelflow/internal/runtime/ids"
	"github.com/drblury/parcelflow/internal/runtime/jsoncodec"
)

// FromWatermill converts a transport message into a parcel. Known header keys
// are read from metadata; everything else lands in Headers.Extra. The payload
// must be a JSON object or empty.
func FromWatermill(msg *message.Message) (Parcel, error) {
	if msg == nil {
		return Parcel{}, fmt.Errorf("parcelflow: message is nil")
	}

	h := Headers{Extra: map[string]string{}}
	for k, v := range msg.Metadata {
		switch k {
		case HeaderKind:
			h.Kind = v
		case HeaderUUID:
			h.UUID = v
		case HeaderParentUUID:
			h.ParentUUID = v
		case HeaderOriginUUID:
			h.OriginUUID = v
		case HeaderElapsedTime:
			if elapsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				h.ElapsedTime = elapsed
			}
		default:
			h.Extra[k] = v
		}
	}

	body := Message{}
	if len(msg.Payload) > 0 {
		if err := jsoncodec.Unmarshal(msg.Payload, &body); err != nil {
			return Parcel{}, fmt.Errorf("parcelflow: decode parcel message: %w", err)
		}
	}
	if h.Kind == "" {
		h.Kind = body.Kind()
	}

	return Parcel{Headers: h, Message: body}, nil
}

// ToWatermill converts a parcel into a transport message. The parcel UUID is
// reused as the message UUID when present.
func ToWatermill(p Parcel) (*message.Message, error) {
	payload, err := jsoncodec.Marshal(p.Message)
	if err != nil {
		return nil, fmt.Errorf("parcelflow: encode parcel message: %w", err)
	}

	id := p.Headers.UUID
	if id == "" {
		id = idspkg.CreateULID()
	}
	msg := message.NewMessage(id, payload)
	for k, v := range p.Headers.Extra {
		msg.Metadata.Set(k, v)
	}
	setIfNotEmpty(msg.Metadata, HeaderKind, p.Headers.Kind)
	setIfNotEmpty(msg.Metadata, HeaderUUID, p.Headers.UUID)
	setIfNotEmpty(msg.Metadata, HeaderParentUUID, p.Headers.ParentUUID)
	setIfNotEmpty(msg.Metadata, HeaderOriginUUID, p.Headers.OriginUUID)
	if p.Headers.ElapsedTime != 0 {
		msg.Metadata.Set(HeaderElapsedTime, strconv.FormatInt(p.Headers.ElapsedTime, 10))
	}
	return msg, nil
}

func setIfNotEmpty(md message.Metadata, key, value string) {
	if value != "" {
		md.Set(key, value)
	}
}
