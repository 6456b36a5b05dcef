package motor

import "fmt"

// ParamKind is the wire representation of a parameter value.
type ParamKind int

const (
	ParamFloat ParamKind = iota
	ParamUint8
)

// Param is one entry of the motor's runtime parameter table, addressed by a
// 16-bit index in read/write frames.
type Param struct {
	Name     string
	Index    uint16
	Kind     ParamKind
	ReadOnly bool
}

// Runtime parameter table per the vendor protocol documentation.
var (
	ParamRunMode     = Param{"run_mode", 0x7005, ParamUint8, false}
	ParamIqRef       = Param{"iq_ref", 0x7006, ParamFloat, false}
	ParamSpdRef      = Param{"spd_ref", 0x700A, ParamFloat, false}
	ParamLimitTorque = Param{"limit_torque", 0x700B, ParamFloat, false}
	ParamLocRef      = Param{"loc_ref", 0x7016, ParamFloat, false}
	ParamLimitSpd    = Param{"limit_spd", 0x7017, ParamFloat, false}
	ParamLimitCur    = Param{"limit_cur", 0x7018, ParamFloat, false}
	ParamMechPos     = Param{"mechpos", 0x7019, ParamFloat, true}
	ParamIqFilter    = Param{"iqf", 0x701A, ParamFloat, true}
	ParamMechVel     = Param{"mechvel", 0x701B, ParamFloat, true}
	ParamVBus        = Param{"vbus", 0x701C, ParamFloat, true}
	ParamLocKp       = Param{"loc_kp", 0x701E, ParamFloat, false}
	ParamSpdKp       = Param{"spd_kp", 0x701F, ParamFloat, false}
	ParamSpdKi       = Param{"spd_ki", 0x7020, ParamFloat, false}
	ParamSpdFiltGain = Param{"spd_filt_gain", 0x7021, ParamFloat, false}
)

var (
	paramsByName  = map[string]Param{}
	paramsByIndex = map[uint16]Param{}
)

func init() {
	for _, p := range []Param{
		ParamRunMode, ParamIqRef, ParamSpdRef, ParamLimitTorque,
		ParamLocRef, ParamLimitSpd, ParamLimitCur, ParamMechPos,
		ParamIqFilter, ParamMechVel, ParamVBus, ParamLocKp,
		ParamSpdKp, ParamSpdKi, ParamSpdFiltGain,
	} {
		paramsByName[p.Name] = p
		paramsByIndex[p.Index] = p
	}
}

// ParamByName looks up a parameter by its table name.
func ParamByName(name string) (Param, error) {
	p, ok := paramsByName[name]
	if !ok {
		return Param{}, fmt.Errorf("unknown parameter %q", name)
	}
	return p, nil
}
