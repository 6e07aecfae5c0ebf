package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gitlab.com/gomidi/midi/v2"
)

// defaultNotes is played when no notes are given.
const defaultNotes = "C4 E4 G4"

var noteSemitones = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// play auditions the current patch with a short note sequence. Notes are
// separated by spaces, commas, semicolons or bars; "r" is a rest.
func (a *app) play(notesText string) error {
	if a.synth == nil {
		return errNoDevice
	}
	if strings.TrimSpace(notesText) == "" {
		notesText = defaultNotes
	}
	tokens := strings.FieldsFunc(notesText, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == '|'
	})

	ch := a.cfg.MIDIChannel()
	for _, tok := range tokens {
		n, isRest, err := parseNoteToken(tok)
		if err != nil {
			return fmt.Errorf("invalid note %q: %w", tok, err)
		}

		if isRest {
			time.Sleep(360 * time.Millisecond)
			continue
		}

		if err := a.synth.Send(midi.NoteOn(ch, n, 100)); err != nil {
			return fmt.Errorf("note on failed for %d: %w", n, err)
		}
		time.Sleep(300 * time.Millisecond)
		if err := a.synth.Send(midi.NoteOff(ch, n)); err != nil {
			return fmt.Errorf("note off failed for %d: %w", n, err)
		}
		time.Sleep(60 * time.Millisecond)
	}
	return nil
}

// parseNoteToken reads a note such as "C4", "F#3" or "Bb2" (middle C is C4).
func parseNoteToken(tok string) (uint8, bool, error) {
	t := strings.TrimSpace(tok)
	if strings.EqualFold(t, "r") || strings.EqualFold(t, "rest") {
		return 0, true, nil
	}
	if len(t) < 2 {
		return 0, false, fmt.Errorf("too short")
	}

	semitone, ok := noteSemitones[byte(unicode.ToUpper(rune(t[0])))]
	if !ok {
		return 0, false, fmt.Errorf("invalid note letter %q", t[0])
	}
	rest := t[1:]
	switch rest[0] {
	case '#':
		semitone++
		rest = rest[1:]
	case 'b', 'B':
		semitone--
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false, fmt.Errorf("invalid octave: %w", err)
	}
	n := 12*(octave+1) + semitone
	if n < 0 || n > 127 {
		return 0, false, fmt.Errorf("MIDI note out of range: %d", n)
	}
	return uint8(n), false, nil
}
