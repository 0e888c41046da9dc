// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "fmt"

// DeviceObject is one identification object from an FC43/14 response.
type DeviceObject struct {
	ID    byte
	Value string
}

// Name returns the canonical name of a standard identification object,
// or "Object(id)" for vendor-defined ids.
func (o DeviceObject) Name() string {
	switch o.ID {
	case 0x00:
		return "VendorName"
	case 0x01:
		return "ProductCode"
	case 0x02:
		return "MajorMinorRevision"
	case 0x03:
		return "VendorUrl"
	case 0x04:
		return "ProductName"
	case 0x05:
		return "ModelName"
	case 0x06:
		return "UserApplicationName"
	default:
		return fmt.Sprintf("Object(%d)", o.ID)
	}
}

// DeviceIdentification is one parsed FC43/14 response. MoreFollows
// signals that the device has further objects starting at NextObjectID,
// to be fetched with a continuation request.
type DeviceIdentification struct {
	Conformity   byte
	MoreFollows  bool
	NextObjectID byte
	Objects      []DeviceObject
}

// ParseDeviceIdentification parses an FC43/14 response PDU.
func ParseDeviceIdentification(pdu ProtocolDataUnit) (*DeviceIdentification, error) {
	data := pdu.Data
	// MEI type, ReadDevID code, conformity, more follows, next object id,
	// number of objects.
	if len(data) < 6 {
		return nil, fmt.Errorf("modbus: device identification response too short (%d bytes)", len(data))
	}
	if data[0] != MEITypeDeviceIdentification {
		return nil, fmt.Errorf("modbus: unexpected MEI type 0x%02X in device identification response", data[0])
	}

	ident := &DeviceIdentification{
		Conformity:   data[2],
		MoreFollows:  data[3] == 0xFF,
		NextObjectID: data[4],
	}
	count := int(data[5])

	off := 6
	for i := 0; i < count; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("modbus: truncated device identification object %d", i)
		}
		id := data[off]
		length := int(data[off+1])
		off += 2
		if off+length > len(data) {
			return nil, fmt.Errorf("modbus: truncated device identification object %d value", i)
		}
		ident.Objects = append(ident.Objects, DeviceObject{ID: id, Value: string(data[off : off+length])})
		off += length
	}
	return ident, nil
}
