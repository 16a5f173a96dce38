// internal/game/task.go
package game

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TaskType names one puzzle family.
type TaskType string

const (
	TaskMemoryWords  TaskType = "memory_words"
	TaskMemoryNumber TaskType = "memory_number"
	TaskCaptcha      TaskType = "captcha"
	TaskMath         TaskType = "math"
)

var taskTypes = []TaskType{TaskMemoryWords, TaskMemoryNumber, TaskCaptcha, TaskMath}

var memoryWordList = []string{
	"apple", "banana", "cherry", "dragon", "elephant", "fire", "green", "house",
	"ice", "jungle", "king", "lion", "moon", "ninja", "ocean", "pizza",
	"queen", "robot", "star", "tiger", "unicorn", "volcano", "wizard", "xray",
}

const captchaAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TaskData is the puzzle body. Exactly one field is set, matching the task type.
type TaskData struct {
	Words    []string `json:"words,omitempty"`
	Number   string   `json:"number,omitempty"`
	Captcha  string   `json:"captcha,omitempty"`
	Equation string   `json:"equation,omitempty"`
}

// Task is the puzzle of one round plus who answered and how.
type Task struct {
	ID   uuid.UUID `json:"id"`
	Type TaskType  `json:"type"`
	Data TaskData  `json:"data"`

	// Submissions holds raw answers; results caches their validation.
	Submissions map[string]string `json:"-"`
	results     map[string]bool
}

// GenerateTask produces one random puzzle. It is a pure function of r.
func GenerateTask(r *rand.Rand) *Task {
	t := &Task{
		ID:          uuid.New(),
		Type:        taskTypes[r.IntN(len(taskTypes))],
		Submissions: make(map[string]string),
		results:     make(map[string]bool),
	}
	switch t.Type {
	case TaskMemoryWords:
		perm := r.Perm(len(memoryWordList))
		t.Data.Words = []string{memoryWordList[perm[0]], memoryWordList[perm[1]], memoryWordList[perm[2]]}
	case TaskMemoryNumber:
		t.Data.Number = strconv.Itoa(10000 + r.IntN(90000))
	case TaskCaptcha:
		var b strings.Builder
		for range 5 {
			b.WriteByte(captchaAlphabet[r.IntN(len(captchaAlphabet))])
		}
		t.Data.Captcha = b.String()
	case TaskMath:
		ops := []string{"+", "-", "*"}
		t.Data.Equation = fmt.Sprintf("%d %s %d", r.IntN(50)+1, ops[r.IntN(len(ops))], r.IntN(50)+1)
	}
	return t
}

// Check reports whether answer solves the task.
func (t *Task) Check(answer string) bool {
	answer = strings.TrimSpace(answer)
	switch t.Type {
	case TaskMemoryWords:
		return strings.ToLower(strings.Join(t.Data.Words, " ")) == strings.ToLower(answer)
	case TaskMemoryNumber:
		return t.Data.Number == answer
	case TaskCaptcha:
		return strings.EqualFold(t.Data.Captcha, answer)
	case TaskMath:
		want, err := evalEquation(t.Data.Equation)
		if err != nil {
			return false
		}
		got, err := strconv.Atoi(answer)
		return err == nil && got == want
	}
	return false
}

// submit records answer once. A resubmission returns the first result with first=false.
func (t *Task) submit(participant, answer string) (correct, first bool) {
	if prev, ok := t.results[participant]; ok {
		return prev, false
	}
	correct = t.Check(answer)
	t.Submissions[participant] = answer
	t.results[participant] = correct
	return correct, true
}

// evalEquation evaluates the closed "<int> <op> <int>" format produced by GenerateTask.
func evalEquation(eq string) (int, error) {
	fields := strings.Fields(eq)
	if len(fields) != 3 {
		return 0, fmt.Errorf("malformed equation %q", eq)
	}
	a, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("left operand: %w", err)
	}
	b, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, fmt.Errorf("right operand: %w", err)
	}
	switch fields[1] {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	}
	return 0, fmt.Errorf("unknown operator %q", fields[1])
}
