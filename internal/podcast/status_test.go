package podcast

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusSearching, true},
		{StatusProcessing, StatusGeneratingScript, true},
		{StatusSearching, StatusGeneratingScript, true},
		{StatusGeneratingScript, StatusGeneratingAudio, true},
		{StatusGeneratingAudio, StatusMergingAudio, true},
		{StatusMergingAudio, StatusCompleted, true},
		{StatusMergingAudio, StatusGeneratingSummary, true},
		{StatusGeneratingSummary, StatusCompleted, true},
		{StatusGeneratingAudio, StatusFailed, true},
		{StatusPending, StatusFailed, true},
		{StatusFailed, StatusPending, true},

		{StatusPending, StatusGeneratingScript, false},
		{StatusGeneratingAudio, StatusGeneratingScript, false},
		{StatusProcessing, StatusGeneratingAudio, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
		{Status("bogus"), StatusFailed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() || StatusPending.Terminal() {
		t.Fatal("terminal statuses are completed and failed")
	}
	if StatusPending.Active() || !StatusMergingAudio.Active() || StatusFailed.Active() {
		t.Fatal("active means owned by a worker")
	}
}

func TestSettingsDefaultsAndValidation(t *testing.T) {
	s := Settings{HostNames: []string{"Ana", "Ben", "Cy"}, HostCount: 2}.WithDefaults(DefaultSettings())
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(s.HostNames) != 2 {
		t.Fatalf("host names = %v, want trimmed to host count", s.HostNames)
	}

	bad := DefaultSettings()
	bad.Version = 2
	bad.TTSSpeed = 10
	bad.HostNames = []string{"Alex: host", "Sam"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation errors")
	}
}

func TestSettingsBatchOptions(t *testing.T) {
	s := DefaultSettings()
	s.EmotionTags = true
	s.IntroText = "Welcome"
	opts := s.BatchOptions()
	if opts.MaxChars != s.MaxChunkChars || !opts.EmotionTags || opts.IntroText != "Welcome" || len(opts.Voices) != 2 {
		t.Fatalf("opts = %+v", opts)
	}
}
