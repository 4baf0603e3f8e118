package model

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Duration is a google.protobuf.Duration in its JSON form ("3600s").
type Duration struct {
	time.Duration
}

func NewDuration(d time.Duration) *Duration { return &Duration{Duration: d} }

func (d Duration) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(durationpb.New(d.Duration))
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var pb durationpb.Duration
	if err := protojson.Unmarshal(b, &pb); err != nil {
		return fmt.Errorf("invalid duration %s: %w", b, err)
	}
	if err := pb.CheckValid(); err != nil {
		return err
	}
	d.Duration = pb.AsDuration()
	return nil
}
