package intent

import "testing"

func TestFoldID(t *testing.T) {
	cases := []struct {
		name    string
		data    []byte
		want    uint64
		wantErr bool
	}{
		{"empty", nil, 0, false},
		{"single", []byte{1, 0, 0, 0, 0, 0, 0, 0}, 1, false},
		{
			"two_chunks",
			[]byte{
				1, 0, 0, 0, 0, 0, 0, 0,
				2, 0, 0, 0, 0, 0, 0, 0,
			},
			3, false,
		},
		{
			"three_chunks_cancel",
			[]byte{
				1, 0, 0, 0, 0, 0, 0, 0,
				2, 0, 0, 0, 0, 0, 0, 0,
				3, 0, 0, 0, 0, 0, 0, 0,
			},
			0, false,
		},
		{
			"partial_chunk",
			[]byte{
				1, 0, 0, 0, 0, 0, 0, 0,
				2, 0, 0, 0, 0, 0, 0,
			},
			0, true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FoldID(tc.data)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("FoldID = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateNew, StateValidated, true},
		{StateNew, StateUnderExecution, true},
		{StateValidated, StateUnderExecution, true},
		{StateUnderExecution, StateExecuted, true},
		{StateNew, StateExecuted, false},
		{StateValidated, StateNew, false},
		{StateExecuted, StateNew, false},
		{StateUnderExecution, StateNew, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIntent_Transition(t *testing.T) {
	i := Intent{State: StateNew}

	next, err := i.Transition(StateUnderExecution)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.State != StateUnderExecution {
		t.Fatalf("state = %s, want UnderExecution", next.State)
	}
	if i.State != StateNew {
		t.Fatal("Transition mutated the receiver")
	}

	if _, err := i.Transition(StateExecuted); err == nil {
		t.Fatal("expected illegal transition error")
	}
}
