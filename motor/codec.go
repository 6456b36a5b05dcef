package motor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/brutella/can"
)

// Communication types carried in bits 24-28 of the 29-bit arbitration ID.
const (
	CommGetDeviceID  uint8 = 0
	CommOperation    uint8 = 1
	CommFeedback     uint8 = 2
	CommEnable       uint8 = 3
	CommDisable      uint8 = 4
	CommZeroPosition uint8 = 6
	CommParamRead    uint8 = 17
	CommParamWrite   uint8 = 18
	CommSaveConfig   uint8 = 22
)

const (
	// Extended frame format flag and 29-bit ID mask in the socketcan ID word.
	frameFlagExtended = 0x80000000
	frameMaskID       = 0x1FFFFFFF
)

// Arbitration ID layout: type in bits 24-28, a 16-bit data area in bits
// 8-23 (host ID for plain commands, scaled torque for operation control,
// motor ID plus fault/mode bits for feedback) and the destination in
// bits 0-7.
func commandID(commType uint8, data16 uint16, target MotorID) uint32 {
	return frameFlagExtended |
		uint32(commType&0x1F)<<24 |
		uint32(data16)<<8 |
		uint32(target)
}

func packFrame(id uint32, data []byte) can.Frame {
	var frameData [8]byte
	copy(frameData[:], data)
	return can.Frame{
		ID:     id,
		Length: 8,
		Flags:  0,
		Data:   frameData,
	}
}

// FrameCommType extracts the communication type from a frame ID.
func FrameCommType(frame can.Frame) uint8 {
	return uint8((frame.ID & frameMaskID) >> 24)
}

// FrameMotorID extracts the sending motor's ID from a motor-to-host frame.
func FrameMotorID(frame can.Frame) MotorID {
	return MotorID((frame.ID >> 8) & 0xFF)
}

// scaleToU16 clips value into [min, max] and scales it across the full
// 16-bit span, matching the controller's fixed-point packing.
func scaleToU16(value, min, max float64) uint16 {
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return uint16(65535.0 * (value - min) / (max - min))
}

func unscaleU16(raw uint16, min, max float64) float64 {
	return float64(raw)/65535.0*(max-min) + min
}

// EncodeEnable builds the enable frame for a motor.
func EncodeEnable(host, id MotorID) can.Frame {
	return packFrame(commandID(CommEnable, uint16(host), id), nil)
}

// EncodeDisable builds the disable frame. With clearFault set the motor
// also resets latched fault bits.
func EncodeDisable(host, id MotorID, clearFault bool) can.Frame {
	var data [8]byte
	if clearFault {
		data[0] = 1
	}
	return packFrame(commandID(CommDisable, uint16(host), id), data[:])
}

// EncodeZeroPosition builds the frame that makes the current mechanical
// angle the motor's zero.
func EncodeZeroPosition(host, id MotorID) can.Frame {
	var data [8]byte
	data[0] = 1
	return packFrame(commandID(CommZeroPosition, uint16(host), id), data[:])
}

// EncodeSaveConfig builds the frame that persists the motor's current
// configuration (including a zero offset) to flash.
func EncodeSaveConfig(host, id MotorID) can.Frame {
	var data [8]byte
	data[0] = 1
	return packFrame(commandID(CommSaveConfig, uint16(host), id), data[:])
}

// EncodeOperation builds an impedance-control frame. The torque
// feed-forward travels in the ID data area; position, velocity and gains
// are packed big-endian into the payload, each scaled over the model's
// documented range.
func EncodeOperation(id MotorID, model *Model, cmd OperationCommand) can.Frame {
	torque := scaleToU16(cmd.Torque, model.TorqueMin, model.TorqueMax)

	data := make([]byte, 8)
	binary.BigEndian.PutUint16(data[0:2], scaleToU16(cmd.Position, model.PosMin, model.PosMax))
	binary.BigEndian.PutUint16(data[2:4], scaleToU16(cmd.Velocity, model.VelMin, model.VelMax))
	binary.BigEndian.PutUint16(data[4:6], scaleToU16(cmd.Kp, model.KpMin, model.KpMax))
	binary.BigEndian.PutUint16(data[6:8], scaleToU16(cmd.Kd, model.KdMin, model.KdMax))

	return packFrame(commandID(CommOperation, torque, id), data)
}

// EncodeParamRead builds a parameter read request.
func EncodeParamRead(host, id MotorID, param Param) can.Frame {
	var data [8]byte
	binary.LittleEndian.PutUint16(data[0:2], param.Index)
	return packFrame(commandID(CommParamRead, uint16(host), id), data[:])
}

// EncodeParamWrite builds a parameter write request. The index occupies
// payload bytes 0-1 little-endian and the value bytes 4-7.
func EncodeParamWrite(host, id MotorID, param Param, value float64) (can.Frame, error) {
	if param.ReadOnly {
		return can.Frame{}, fmt.Errorf("parameter %s is read-only", param.Name)
	}

	var data [8]byte
	binary.LittleEndian.PutUint16(data[0:2], param.Index)

	switch param.Kind {
	case ParamUint8:
		data[4] = uint8(value)
	case ParamFloat:
		binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(float32(value)))
	default:
		return can.Frame{}, fmt.Errorf("parameter %s: unsupported kind %d", param.Name, param.Kind)
	}

	return packFrame(commandID(CommParamWrite, uint16(host), id), data[:]), nil
}

// EncodeCommand expands a typed command into the frame sequence that
// realizes it. Position, velocity and torque setpoints switch the motor
// into the matching run mode before writing the setpoint parameter.
func EncodeCommand(host, id MotorID, model *Model, cmd Command) ([]can.Frame, error) {
	switch c := cmd.(type) {
	case EnableCommand:
		return []can.Frame{EncodeEnable(host, id)}, nil

	case DisableCommand:
		return []can.Frame{EncodeDisable(host, id, c.ClearFault)}, nil

	case PositionCommand:
		frames := make([]can.Frame, 0, 4)
		frame, err := EncodeParamWrite(host, id, ParamRunMode, float64(RunModePosition))
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)

		if c.MaxVelocity > 0 {
			frame, err = EncodeParamWrite(host, id, ParamLimitSpd, c.MaxVelocity)
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
		}
		if c.MaxCurrent > 0 {
			frame, err = EncodeParamWrite(host, id, ParamLimitCur, c.MaxCurrent)
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
		}

		frame, err = EncodeParamWrite(host, id, ParamLocRef, c.Angle)
		if err != nil {
			return nil, err
		}
		return append(frames, frame), nil

	case VelocityCommand:
		mode, err := EncodeParamWrite(host, id, ParamRunMode, float64(RunModeSpeed))
		if err != nil {
			return nil, err
		}
		ref, err := EncodeParamWrite(host, id, ParamSpdRef, c.Velocity)
		if err != nil {
			return nil, err
		}
		return []can.Frame{mode, ref}, nil

	case TorqueCommand:
		mode, err := EncodeParamWrite(host, id, ParamRunMode, float64(RunModeCurrent))
		if err != nil {
			return nil, err
		}
		ref, err := EncodeParamWrite(host, id, ParamIqRef, c.Current)
		if err != nil {
			return nil, err
		}
		return []can.Frame{mode, ref}, nil

	case OperationCommand:
		mode, err := EncodeParamWrite(host, id, ParamRunMode, float64(RunModeOperation))
		if err != nil {
			return nil, err
		}
		return []can.Frame{mode, EncodeOperation(id, model, c)}, nil
	}

	return nil, fmt.Errorf("%w: unknown command %T", ErrDecode, cmd)
}

// DecodeFeedback decodes a type-2 status frame. The motor ID, fault bits
// and mode state travel in the arbitration ID; position, velocity, torque
// and temperature are packed big-endian into the payload.
func DecodeFeedback(model *Model, frame can.Frame) (Feedback, error) {
	id := frame.ID & frameMaskID

	if uint8(id>>24) != CommFeedback {
		return Feedback{}, fmt.Errorf("%w: frame 0x%08X is not a feedback frame", ErrDecode, id)
	}
	if frame.Length < 8 {
		return Feedback{}, fmt.Errorf("%w: feedback frame with %d bytes", ErrDecode, frame.Length)
	}

	fb := Feedback{
		ID:     MotorID((id >> 8) & 0xFF),
		Faults: FaultSet((id >> 16) & 0x3F),
		Mode:   ModeStatus((id >> 22) & 0x3),
	}

	fb.Position = unscaleU16(binary.BigEndian.Uint16(frame.Data[0:2]), model.PosMin, model.PosMax)
	fb.Velocity = unscaleU16(binary.BigEndian.Uint16(frame.Data[2:4]), model.VelMin, model.VelMax)
	fb.Torque = unscaleU16(binary.BigEndian.Uint16(frame.Data[4:6]), model.TorqueMin, model.TorqueMax)
	fb.Temperature = float64(binary.BigEndian.Uint16(frame.Data[6:8])) / 10.0

	return fb, nil
}

// ParamResponse is a decoded parameter read reply.
type ParamResponse struct {
	ID    MotorID
	Index uint16
	Value float64
}

// DecodeParamResponse decodes a type-17 parameter reply. Uint8 parameters
// carry their value in payload byte 4, float parameters as a
// little-endian float32 in bytes 4-7.
func DecodeParamResponse(frame can.Frame) (ParamResponse, error) {
	id := frame.ID & frameMaskID

	if uint8(id>>24) != CommParamRead {
		return ParamResponse{}, fmt.Errorf("%w: frame 0x%08X is not a parameter reply", ErrDecode, id)
	}
	if frame.Length < 8 {
		return ParamResponse{}, fmt.Errorf("%w: parameter reply with %d bytes", ErrDecode, frame.Length)
	}

	resp := ParamResponse{
		ID:    MotorID((id >> 8) & 0xFF),
		Index: binary.LittleEndian.Uint16(frame.Data[0:2]),
	}

	if param, ok := paramsByIndex[resp.Index]; ok && param.Kind == ParamUint8 {
		resp.Value = float64(frame.Data[4])
	} else {
		bits := binary.LittleEndian.Uint32(frame.Data[4:8])
		resp.Value = float64(math.Float32frombits(bits))
	}

	return resp, nil
}
