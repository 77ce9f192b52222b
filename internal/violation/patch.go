package violation

import (
	"errors"
	"fmt"
	"time"

	"birdnest/internal/telemetry"
)

var (
	// ErrFieldType is returned when a value does not match the field's type.
	ErrFieldType = errors.New("value has wrong type for field")
	// ErrPilotSet is returned when writing the pilot of a record that
	// already has one.
	ErrPilotSet = errors.New("pilot already set")
)

// Field names a single settable attribute of a Violation.
type Field int

const (
	FieldModel Field = iota
	FieldManufacturer
	FieldMAC
	FieldIPv4
	FieldIPv6
	FieldFirmware
	FieldAltitude
	FieldPositionX
	FieldPositionY
	FieldClosestDistance
	FieldLastSeen
	FieldPositions
	FieldPilot
)

var fieldNames = [...]string{
	FieldModel:           "model",
	FieldManufacturer:    "manufacturer",
	FieldMAC:             "mac",
	FieldIPv4:            "ipv4",
	FieldIPv6:            "ipv6",
	FieldFirmware:        "firmware",
	FieldAltitude:        "altitude",
	FieldPositionX:       "positionX",
	FieldPositionY:       "positionY",
	FieldClosestDistance: "closestDistance",
	FieldLastSeen:        "lastSeen",
	FieldPositions:       "positions",
	FieldPilot:           "pilot",
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// set overwrites one field of v. The value is copied in. The pilot can only
// be written while v has none.
func (v *Violation) set(f Field, value any) error {
	ok := true
	switch f {
	case FieldModel:
		v.Model, ok = value.(string)
	case FieldManufacturer:
		v.Manufacturer, ok = value.(string)
	case FieldMAC:
		v.MAC, ok = value.(string)
	case FieldIPv4:
		v.IPv4, ok = value.(string)
	case FieldIPv6:
		v.IPv6, ok = value.(string)
	case FieldFirmware:
		v.Firmware, ok = value.(string)
	case FieldAltitude:
		v.Altitude, ok = value.(float64)
	case FieldPositionX:
		v.PositionX, ok = value.(float64)
	case FieldPositionY:
		v.PositionY, ok = value.(float64)
	case FieldClosestDistance:
		v.ClosestDistance, ok = value.(float64)
	case FieldLastSeen:
		v.LastSeen, ok = value.(time.Time)
	case FieldPositions:
		var p telemetry.Positions
		p, ok = value.(telemetry.Positions)
		if ok {
			v.Positions = p.Clone()
		}
	case FieldPilot:
		if v.Pilot != nil {
			return fmt.Errorf("%w: %s", ErrPilotSet, v.SerialNumber)
		}
		switch p := value.(type) {
		case nil:
			v.Pilot = nil
		case *telemetry.Pilot:
			if p == nil {
				v.Pilot = nil
			} else {
				cp := *p
				v.Pilot = &cp
			}
		case telemetry.Pilot:
			v.Pilot = &p
		default:
			ok = false
		}
	default:
		return fmt.Errorf("unknown field %v", f)
	}
	if !ok {
		return fmt.Errorf("%w: %s got %T", ErrFieldType, f, value)
	}
	return nil
}

// Patch is a typed partial record. Nil fields are left untouched.
//
// Merge rules: scalar fields overwrite; Positions merge key by key with the
// patch entry winning on collision; Pilot is written only while the stored
// record has none.
type Patch struct {
	Model           *string
	Manufacturer    *string
	MAC             *string
	IPv4            *string
	IPv6            *string
	Firmware        *string
	Altitude        *float64
	PositionX       *float64
	PositionY       *float64
	ClosestDistance *float64
	LastSeen        *time.Time
	Positions       telemetry.Positions
	Pilot           *telemetry.Pilot
}

// PatchOf converts a full record into a patch carrying all of its fields.
func PatchOf(v Violation) Patch {
	v = v.Clone()
	return Patch{
		Model:           &v.Model,
		Manufacturer:    &v.Manufacturer,
		MAC:             &v.MAC,
		IPv4:            &v.IPv4,
		IPv6:            &v.IPv6,
		Firmware:        &v.Firmware,
		Altitude:        &v.Altitude,
		PositionX:       &v.PositionX,
		PositionY:       &v.PositionY,
		ClosestDistance: &v.ClosestDistance,
		LastSeen:        &v.LastSeen,
		Positions:       v.Positions,
		Pilot:           v.Pilot,
	}
}

// apply merges p into v.
func (p Patch) apply(v *Violation) {
	setIf(&v.Model, p.Model)
	setIf(&v.Manufacturer, p.Manufacturer)
	setIf(&v.MAC, p.MAC)
	setIf(&v.IPv4, p.IPv4)
	setIf(&v.IPv6, p.IPv6)
	setIf(&v.Firmware, p.Firmware)
	setIf(&v.Altitude, p.Altitude)
	setIf(&v.PositionX, p.PositionX)
	setIf(&v.PositionY, p.PositionY)
	setIf(&v.ClosestDistance, p.ClosestDistance)
	setIf(&v.LastSeen, p.LastSeen)
	if len(p.Positions) > 0 {
		if v.Positions == nil {
			v.Positions = make(telemetry.Positions, len(p.Positions))
		}
		for ts, pt := range p.Positions {
			v.Positions[ts] = pt
		}
	}
	if p.Pilot != nil && v.Pilot == nil {
		cp := *p.Pilot
		v.Pilot = &cp
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
