package muesli

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Signals for serializer events.
var (
	SignalSerializeStart      = capitan.NewSignal("muesli.serialize.start", "Write pass beginning")
	SignalSerializeComplete   = capitan.NewSignal("muesli.serialize.complete", "Write pass finished")
	SignalDeserializeStart    = capitan.NewSignal("muesli.deserialize.start", "Read pass beginning")
	SignalDeserializeComplete = capitan.NewSignal("muesli.deserialize.complete", "Read pass finished")
	SignalDescriptorBuilt     = capitan.NewSignal("muesli.descriptor.built", "Type descriptor built")
	SignalNodeSkipped         = capitan.NewSignal("muesli.node.skipped", "Malformed node skipped")
)

// Keys for typed event data.
var (
	KeyTypeName = capitan.NewStringKey("type_name")
	KeyCategory = capitan.NewStringKey("category")
	KeyMember   = capitan.NewStringKey("member")
	KeySize     = capitan.NewIntKey("size")
	KeyWarnings = capitan.NewIntKey("warnings")
	KeyDuration = capitan.NewDurationKey("duration")
	KeyError    = capitan.NewErrorKey("error")
)

// emitSerializeStart emits an event when a write pass begins.
func emitSerializeStart(ctx context.Context, typeName string) {
	capitan.Emit(ctx, SignalSerializeStart, KeyTypeName.Field(typeName))
}

// emitSerializeComplete emits an event when a write pass finishes.
func emitSerializeComplete(ctx context.Context, typeName string, size int, duration time.Duration, err error) {
	fields := []capitan.Field{
		KeyTypeName.Field(typeName),
		KeySize.Field(size),
		KeyDuration.Field(duration),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalSerializeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalSerializeComplete, fields...)
	}
}

// emitDeserializeStart emits an event when a read pass begins.
func emitDeserializeStart(ctx context.Context, typeName string) {
	capitan.Emit(ctx, SignalDeserializeStart, KeyTypeName.Field(typeName))
}

// emitDeserializeComplete emits an event when a read pass finishes.
func emitDeserializeComplete(ctx context.Context, typeName string, duration time.Duration, warnings int, err error) {
	fields := []capitan.Field{
		KeyTypeName.Field(typeName),
		KeyDuration.Field(duration),
		KeyWarnings.Field(warnings),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalDeserializeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalDeserializeComplete, fields...)
	}
}

// emitDescriptorBuilt emits an event when a type descriptor is built.
func emitDescriptorBuilt(ctx context.Context, typeName, category string, duration time.Duration) {
	capitan.Emit(ctx, SignalDescriptorBuilt,
		KeyTypeName.Field(typeName),
		KeyCategory.Field(category),
		KeyDuration.Field(duration),
	)
}

// emitNodeSkipped emits an event when a malformed node is skipped.
func emitNodeSkipped(ctx context.Context, typeName, member string, err error) {
	capitan.Error(ctx, SignalNodeSkipped,
		KeyTypeName.Field(typeName),
		KeyMember.Field(member),
		KeyError.Field(err),
	)
}
