// Package profile declares the solar accessory's services, attribute types
// and the structured payloads carried by its authenticated attributes.
package profile

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// baseUUID is CC3CDD9F-A4B0-4F7D-88B0-6D3A93AE0000. Every service and
// attribute type replaces the last 16 bits with its short id.
var baseUUID = uuid.MustParse("cc3cdd9f-a4b0-4f7d-88b0-6d3a93ae0000")

// TypeFor derives a type UUID from a 16-bit short id.
func TypeFor(short uint16) uuid.UUID {
	id := baseUUID
	binary.BigEndian.PutUint16(id[14:], short)
	return id
}

// ShortID returns the 16-bit short id of a type derived from the base, and
// false for foreign UUIDs.
func ShortID(t uuid.UUID) (uint16, bool) {
	probe := t
	probe[14], probe[15] = 0, 0
	if probe != baseUUID {
		return 0, false
	}
	return binary.BigEndian.Uint16(t[14:]), true
}

// Service types.
var (
	SolarService          = TypeFor(0x0000)
	InformationService    = TypeFor(0x0100)
	AuthenticationService = TypeFor(0x0200)
	BatteryService        = TypeFor(0x0300)
	OutletService         = TypeFor(0x0400)
)

// Solar attribute types.
var (
	CommandType         = TypeFor(0x0002)
	CommandResponseType = TypeFor(0x0003)
)

// Information attribute types.
var (
	IdentifierType      = TypeFor(0x0101)
	NameType            = TypeFor(0x0102)
	ModelType           = TypeFor(0x0103)
	SerialNumberType    = TypeFor(0x0104)
	SoftwareVersionType = TypeFor(0x0105)
	IdentifyType        = TypeFor(0x0106)
	ProtocolIDType      = TypeFor(0x0107)
)

// Authentication attribute types.
var (
	ChallengeType   = TypeFor(0x0201)
	ConfiguredType  = TypeFor(0x0202)
	CredentialsType = TypeFor(0x0203)
	SetupType       = TypeFor(0x0204)
	InviteType      = TypeFor(0x0205)
	ConfirmType     = TypeFor(0x0206)
	RevokeType      = TypeFor(0x0207)
)

// Battery attribute types.
var (
	BatteryLevelType    = TypeFor(0x0301)
	BatteryVoltageType  = TypeFor(0x0302)
	ChargingCurrentType = TypeFor(0x0303)
	ChargingStateType   = TypeFor(0x0304)
	LowBatteryType      = TypeFor(0x0305)
)

// Outlet attribute types.
var (
	PowerStateType    = TypeFor(0x0401)
	OutputVoltageType = TypeFor(0x0402)
	OutputLoadType    = TypeFor(0x0403)
)

// ChargingState values of ChargingStateType.
const (
	NotCharging uint8 = 0
	Charging    uint8 = 1
)

// DefaultLowBatteryThreshold is the capacity percentage below which the
// low battery flag is raised.
const DefaultLowBatteryThreshold = 25

var names = map[uuid.UUID]string{
	SolarService:          "Solar",
	InformationService:    "Information",
	AuthenticationService: "Authentication",
	BatteryService:        "Battery",
	OutletService:         "Outlet",

	CommandType:         "command",
	CommandResponseType: "commandResponse",

	IdentifierType:      "identifier",
	NameType:            "name",
	ModelType:           "model",
	SerialNumberType:    "serialNumber",
	SoftwareVersionType: "softwareVersion",
	IdentifyType:        "identify",
	ProtocolIDType:      "protocolID",

	ChallengeType:   "challenge",
	ConfiguredType:  "configured",
	CredentialsType: "credentials",
	SetupType:       "setup",
	InviteType:      "invite",
	ConfirmType:     "confirm",
	RevokeType:      "revoke",

	BatteryLevelType:    "batteryLevel",
	BatteryVoltageType:  "batteryVoltage",
	ChargingCurrentType: "chargingCurrent",
	ChargingStateType:   "chargingState",
	LowBatteryType:      "lowBattery",

	PowerStateType:    "powerState",
	OutputVoltageType: "outputVoltage",
	OutputLoadType:    "outputLoad",
}

// Name returns the well-known name of a type, or its UUID string.
func Name(t uuid.UUID) string {
	if n, ok := names[t]; ok {
		return n
	}
	return t.String()
}

// TypeByName resolves a well-known name to its type.
func TypeByName(name string) (uuid.UUID, bool) {
	for t, n := range names {
		if n == name {
			return t, true
		}
	}
	return uuid.Nil, false
}
