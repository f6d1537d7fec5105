package routing

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/parcelflow/internal/runtime/jsoncodec"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

// Parser turns a parcel into the input of an action.
type Parser interface {
	Parse(p parcel.Parcel) (any, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(p parcel.Parcel) (any, error)

// Parse calls f.
func (f ParserFunc) Parse(p parcel.Parcel) (any, error) {
	return f(p)
}

// MessageParser hands the action a private copy of the parcel message.
func MessageParser() Parser {
	return ParserFunc(func(p parcel.Parcel) (any, error) {
		return p.Message.Clone(), nil
	})
}

// ParcelParser hands the action a private copy of the whole parcel.
func ParcelParser() Parser {
	return ParserFunc(func(p parcel.Parcel) (any, error) {
		return p.Clone(), nil
	})
}

// JSONParser decodes the parcel message into a new *T.
func JSONParser[T any]() Parser {
	return ParserFunc(func(p parcel.Parcel) (any, error) {
		out := new(T)
		if err := jsoncodec.Convert(p.Message, out); err != nil {
			return nil, fmt.Errorf("decode %T: %w", out, err)
		}
		return out, nil
	})
}

var protoUnmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// ProtoParser decodes the parcel message into a fresh instance of the
// prototype's message type using the protobuf JSON mapping.
func ProtoParser(prototype proto.Message) Parser {
	if prototype == nil || reflect.ValueOf(prototype).IsNil() {
		panic("parcelflow: proto prototype cannot be nil")
	}
	return ParserFunc(func(p parcel.Parcel) (any, error) {
		data, err := jsoncodec.Marshal(p.Message)
		if err != nil {
			return nil, err
		}
		msg := prototype.ProtoReflect().New().Interface()
		if err := protoUnmarshalOptions.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("decode %T: %w", msg, err)
		}
		return msg, nil
	})
}
