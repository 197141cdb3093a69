package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Component field helpers for common component names
func Component(name string) Field {
	return String("component", name)
}

// BusID identifies a bus by its internal (0-based) index, not its external ID.
func BusID(index int) Field {
	return Int("bus_index", index)
}

// BranchID identifies a branch by its internal (0-based) index.
func BranchID(index int) Field {
	return Int("branch_index", index)
}

func ScenarioID(id string) Field {
	return String("scenario_id", id)
}

func JobID(id string) Field {
	return String("job_id", id)
}

func Iterations(n int) Field {
	return Int("iterations", n)
}

func Mismatch(v float64) Field {
	return Float64("mismatch", v)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
