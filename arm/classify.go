package arm

import (
	"github.com/arloliu/go-servobus/logger"
	"github.com/arloliu/go-servobus/servo"
)

// AckClassifier accepts the success flag reply to op. A false flag fails with
// an *OperationFailedError.
func AckClassifier(axis Axis, op servo.Opcode) Classifier[struct{}] {
	return func(resp servo.Response) Verdict[struct{}] {
		ack, ok := resp.(servo.AckResponse)
		if !ok || ack.Op != op {
			return Continue[struct{}]()
		}
		if !ack.Success {
			return Fail[struct{}](&OperationFailedError{Axis: axis, Op: op})
		}
		return Done(struct{}{})
	}
}

// EncoderAdditionClassifier accepts the first encoder value reply.
func EncoderAdditionClassifier() Classifier[int64] {
	return func(resp servo.Response) Verdict[int64] {
		if r, ok := resp.(servo.EncoderAdditionResponse); ok {
			return Done(r.Value)
		}
		return Continue[int64]()
	}
}

// MotionClassifier follows the status replies of a motion command: Busy keeps
// waiting, Success and LimitReached end the wait, Fail fails with an
// *OperationFailedError. LimitReached is logged as a warning.
func MotionClassifier(axis Axis, op servo.Opcode, l logger.Logger) Classifier[servo.MotionStatus] {
	return func(resp servo.Response) Verdict[servo.MotionStatus] {
		m, ok := resp.(servo.MotionResponse)
		if !ok || m.Op != op {
			return Continue[servo.MotionStatus]()
		}

		switch m.Status {
		case servo.MotionBusy:
			return Continue[servo.MotionStatus]()
		case servo.MotionFail:
			return Fail[servo.MotionStatus](&OperationFailedError{Axis: axis, Op: op})
		case servo.MotionLimitReached:
			l.Warn("axis stopped at end stop", "axis", axis.String(), "opcode", op.String())
		}

		return Done(m.Status)
	}
}
