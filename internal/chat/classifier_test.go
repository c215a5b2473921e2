package chat

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"absence question", "Was anyone absent today?", CategoryAttendance},
		{"roll call", "Read the roll for period 2", CategoryAttendance},
		{"student question", "Which students missed class this week?", CategoryAttendance},
		{"headlines", "Show me the latest news headlines", CategoryNews},
		{"breaking", "Any breaking stories this morning?", CategoryNews},
		{"general", "What's the capital of France?", CategoryGeneral},
		{"empty", "", CategoryGeneral},
		{"attendance beats news", "Any news on student attendance rates?", CategoryAttendance},
		{"case insensitive", "ATTENDANCE REPORT PLEASE", CategoryAttendance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Classify(tt.question)
			if got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.question, got, tt.want)
			}
		})
	}
}

func TestClassifyConfidence(t *testing.T) {
	_, single := Classify("attendance please")
	_, multi := Classify("which students were absent from class attendance today")

	if single >= multi {
		t.Errorf("confidence single=%v multi=%v, want multi higher", single, multi)
	}
	if multi > 0.95 {
		t.Errorf("confidence %v exceeds cap", multi)
	}

	_, general := Classify("hello there")
	if general != 0.5 {
		t.Errorf("general confidence = %v, want 0.5", general)
	}
}
