package runner

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/parcelflow/internal/runtime/jsoncodec"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

// Responses turns the value returned by an action into response parcels
// caused by request.
//
// nil and empty messages produce nothing. A message produces one parcel whose
// kind is the message "kind" entry. Slices produce one parcel per element.
// Parcels keep their headers and only receive causality when they have no
// UUID. Protobuf messages use the protobuf JSON mapping; any other value is
// converted through JSON and must encode as an object.
func Responses(request parcel.Parcel, result any) ([]parcel.Parcel, error) {
	var out []parcel.Parcel
	if err := collect(request, result, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func collect(request parcel.Parcel, result any, out *[]parcel.Parcel) error {
	switch v := result.(type) {
	case nil:
		return nil
	case parcel.Parcel:
		if v.Kind() == "" && len(v.Message) == 0 {
			return nil
		}
		*out = append(*out, parcel.Stamp(request, v))
	case *parcel.Parcel:
		if v != nil {
			return collect(request, *v, out)
		}
	case []parcel.Parcel:
		for _, item := range v {
			if err := collect(request, item, out); err != nil {
				return err
			}
		}
	case parcel.Message:
		appendMessage(request, v, out)
	case map[string]any:
		appendMessage(request, parcel.Message(v), out)
	case []parcel.Message:
		for _, item := range v {
			appendMessage(request, item, out)
		}
	case []map[string]any:
		for _, item := range v {
			appendMessage(request, parcel.Message(item), out)
		}
	case []any:
		for _, item := range v {
			if err := collect(request, item, out); err != nil {
				return err
			}
		}
	case proto.Message:
		data, err := protojson.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %T result: %w", v, err)
		}
		msg := parcel.Message{}
		if err := jsoncodec.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode %T result: %w", v, err)
		}
		appendMessage(request, msg, out)
	default:
		msg := parcel.Message{}
		if err := jsoncodec.Convert(v, &msg); err != nil {
			return fmt.Errorf("convert %T result: %w", v, err)
		}
		appendMessage(request, msg, out)
	}
	return nil
}

func appendMessage(request parcel.Parcel, msg parcel.Message, out *[]parcel.Parcel) {
	if len(msg) == 0 {
		return
	}
	*out = append(*out, parcel.Derive(request, msg.Clone()))
}
