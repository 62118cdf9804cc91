package txflow

import "fmt"

// Step 交易流程所处阶段，数值顺序即合法的推进顺序
type Step int

const (
	StepIdle Step = iota
	StepCheckingApproval
	StepApproving
	StepExecuting
	StepConfirming
	StepCompleted
	StepError
)

var stepNames = map[Step]string{
	StepIdle:             "idle",
	StepCheckingApproval: "checking-approval",
	StepApproving:        "approving",
	StepExecuting:        "executing",
	StepConfirming:       "confirming",
	StepCompleted:        "completed",
	StepError:            "error",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	for step, name := range stepNames {
		if name == string(text) {
			*s = step
			return nil
		}
	}
	return fmt.Errorf("txflow: unknown step %q", text)
}

func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepError
}

// canAdvance 单次运行内只能前进；终态之后只有 Reset 能回到 idle
func canAdvance(from, to Step) bool {
	if from.Terminal() {
		return false
	}
	return to > from
}
