package profile

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
)

// Config describes the static identity of the accessory.
type Config struct {
	ID              uuid.UUID
	Name            string
	Model           string
	SerialNumber    string
	SoftwareVersion string
	ProtocolID      uint32

	// LowBatteryThreshold is the capacity percentage below which the low
	// battery flag is raised. Zero selects DefaultLowBatteryThreshold.
	LowBatteryThreshold uint8
}

// Services builds the accessory's service list in publish order.
func Services(cfg Config) ([]*attribute.Service, error) {
	threshold := cfg.LowBatteryThreshold
	if threshold == 0 {
		threshold = DefaultLowBatteryThreshold
	}

	builders := []func() (*attribute.Service, error){
		func() (*attribute.Service, error) { return information(cfg) },
		authentication,
		func() (*attribute.Service, error) { return battery(threshold) },
		outlet,
		solar,
	}

	services := make([]*attribute.Service, 0, len(builders))
	for _, build := range builders {
		svc, err := build()
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

// Table builds and publishes the accessory's attribute table.
func Table(cfg Config) (*attribute.Table, error) {
	services, err := Services(cfg)
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}
	return attribute.Publish(services...)
}

func information(cfg Config) (*attribute.Service, error) {
	return attribute.NewService(InformationService, Name(InformationService), false,
		attribute.Scalar(IdentifierType, Name(IdentifierType), attribute.FormatUUID, attribute.PropRead).
			WithInitial(attribute.UUID(cfg.ID)),
		attribute.Scalar(NameType, Name(NameType), attribute.FormatString, attribute.PropRead).
			WithInitial(attribute.String(cfg.Name)),
		attribute.Scalar(ModelType, Name(ModelType), attribute.FormatString, attribute.PropRead).
			WithInitial(attribute.String(cfg.Model)),
		attribute.Scalar(SerialNumberType, Name(SerialNumberType), attribute.FormatString, attribute.PropRead|attribute.PropAuthenticated).
			WithInitial(attribute.String(cfg.SerialNumber)),
		attribute.Scalar(SoftwareVersionType, Name(SoftwareVersionType), attribute.FormatString, attribute.PropRead).
			WithInitial(attribute.String(cfg.SoftwareVersion)),
		attribute.Scalar(IdentifyType, Name(IdentifyType), attribute.FormatBool, attribute.PropRead|attribute.PropWriteAuth),
		attribute.Scalar(ProtocolIDType, Name(ProtocolIDType), attribute.FormatUint32, attribute.PropRead|attribute.PropAuthenticated).
			WithInitial(attribute.Uint32(cfg.ProtocolID)),
	)
}

func authentication() (*attribute.Service, error) {
	return attribute.NewService(AuthenticationService, Name(AuthenticationService), true,
		attribute.Scalar(ChallengeType, Name(ChallengeType), attribute.FormatData, attribute.PropReadNotify),
		attribute.Scalar(ConfiguredType, Name(ConfiguredType), attribute.FormatBool, attribute.PropReadNotify),
		attribute.ListOf(CredentialsType, Name(CredentialsType), attribute.FormatData, attribute.PropReadNotify|attribute.PropAuthenticated),
		attribute.Scalar(SetupType, Name(SetupType), attribute.FormatData, attribute.PropWriteEncrypt),
		attribute.Scalar(InviteType, Name(InviteType), attribute.FormatData, attribute.PropWriteEncrypt),
		attribute.Scalar(ConfirmType, Name(ConfirmType), attribute.FormatData, attribute.PropWriteEncrypt),
		attribute.Scalar(RevokeType, Name(RevokeType), attribute.FormatData, attribute.PropWriteEncrypt),
	)
}

func battery(threshold uint8) (*attribute.Service, error) {
	return attribute.NewService(BatteryService, Name(BatteryService), false,
		attribute.Scalar(BatteryLevelType, Name(BatteryLevelType), attribute.FormatUint8, attribute.PropReadNotify),
		attribute.Scalar(BatteryVoltageType, Name(BatteryVoltageType), attribute.FormatFloat32, attribute.PropReadNotify),
		attribute.Scalar(ChargingCurrentType, Name(ChargingCurrentType), attribute.FormatUint16, attribute.PropReadNotify),
		attribute.Scalar(ChargingStateType, Name(ChargingStateType), attribute.FormatUint8, attribute.PropReadNotify),
		attribute.Virtual(LowBatteryType, Name(LowBatteryType), attribute.FormatBool, attribute.PropReadNotify, LowBattery(threshold)),
	)
}

func outlet() (*attribute.Service, error) {
	return attribute.NewService(OutletService, Name(OutletService), false,
		attribute.Scalar(PowerStateType, Name(PowerStateType), attribute.FormatBool, attribute.PropReadNotify|attribute.PropWriteAuth),
		attribute.Scalar(OutputVoltageType, Name(OutputVoltageType), attribute.FormatFloat32, attribute.PropReadNotify),
		attribute.Scalar(OutputLoadType, Name(OutputLoadType), attribute.FormatUint8, attribute.PropReadNotify),
	)
}

func solar() (*attribute.Service, error) {
	return attribute.NewService(SolarService, Name(SolarService), false,
		attribute.Scalar(CommandType, Name(CommandType), attribute.FormatData, attribute.PropWriteEncrypt),
		attribute.Scalar(CommandResponseType, Name(CommandResponseType), attribute.FormatData, attribute.PropNotify|attribute.PropAuthenticated),
	)
}

// LowBattery returns the compute function of the low battery flag.
func LowBattery(threshold uint8) attribute.ComputeFunc {
	return func(r attribute.Reader) (attribute.Value, error) {
		v, ok := r.Value(BatteryLevelType)
		if !ok {
			return attribute.Value{}, attribute.ErrAttributeNotFound
		}
		level, ok := v.AsUint()
		if !ok {
			return attribute.Value{}, attribute.ErrInvalidValue
		}
		return attribute.Bool(level < uint64(threshold)), nil
	}
}
