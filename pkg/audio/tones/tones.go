// Package tones provides the built-in prompt sounds of the device: the boot
// chime, mute and unmute cues and the fault buzz. Tones are written in beat
// notation and rendered to PCM in any supported format.
package tones

// Note frequencies (Hz).
const (
	C4 = 262.0
	E4 = 330.0
	G4 = 392.0
	A4 = 440.0
	C5 = 523.0
	E5 = 659.0
	G5 = 784.0
	C6 = 1047.0

	Rest = 0.0
)

// Note values in beats, quarter note = 1.
const (
	Whole     = 4.0
	Half      = 2.0
	Quarter   = 1.0
	Eighth    = 0.5
	Sixteenth = 0.25
)

// Note is a single pitch held for a duration in milliseconds.
type Note struct {
	Freq float64 // Hz, Rest for silence
	Dur  int     // milliseconds
}

// BeatNote is a pitch held for a number of beats.
type BeatNote struct {
	Freq  float64
	Beats float64
}

// N is a shorthand constructor for BeatNote.
func N(freq, beats float64) BeatNote {
	return BeatNote{Freq: freq, Beats: beats}
}

// Tempo is the speed of a tone in beats per minute.
type Tempo struct {
	BPM int
}

// BeatDuration converts a beat count to milliseconds.
func (t Tempo) BeatDuration(beats float64) int {
	return int(beats * 60000 / float64(t.BPM))
}

// Voice is one monophonic line of a tone.
type Voice []BeatNote

// Notes converts the voice to millisecond notes at tempo t.
func (v Voice) Notes(t Tempo) []Note {
	notes := make([]Note, len(v))
	for i, bn := range v {
		notes[i] = Note{Freq: bn.Freq, Dur: t.BeatDuration(bn.Beats)}
	}
	return notes
}

// Beats returns the total length of the voice in beats.
func (v Voice) Beats() float64 {
	var total float64
	for _, bn := range v {
		total += bn.Beats
	}
	return total
}

// Tone is a short prompt sound made of one or more voices played together.
type Tone struct {
	ID     string
	Name   string
	Tempo  Tempo
	Voices []Voice
}

// Duration returns the length of the longest voice in milliseconds.
func (t Tone) Duration() int {
	var beats float64
	for _, v := range t.Voices {
		beats = max(beats, v.Beats())
	}
	return t.Tempo.BeatDuration(beats)
}

// All lists the built-in tones.
var All = []Tone{
	Boot,
	Mute,
	Unmute,
	Fault,
}

// ByID returns the tone with the given ID, or nil.
func ByID(id string) *Tone {
	for i := range All {
		if All[i].ID == id {
			return &All[i]
		}
	}
	return nil
}

// IDs returns the IDs of every built-in tone.
func IDs() []string {
	ids := make([]string, len(All))
	for i, t := range All {
		ids[i] = t.ID
	}
	return ids
}

// Boot is played once the pipeline is up.
var Boot = Tone{
	ID:    "boot",
	Name:  "Boot chime",
	Tempo: Tempo{BPM: 160},
	Voices: []Voice{
		{N(C5, Eighth), N(E5, Eighth), N(G5, Eighth), N(C6, Half)},
		{N(C4, Half), N(G4, Half)},
	},
}

// Mute is played when the microphones are switched off.
var Mute = Tone{
	ID:     "mute",
	Name:   "Microphones off",
	Tempo:  Tempo{BPM: 180},
	Voices: []Voice{{N(G5, Eighth), N(C5, Quarter)}},
}

// Unmute is played when the microphones are switched back on.
var Unmute = Tone{
	ID:     "unmute",
	Name:   "Microphones on",
	Tempo:  Tempo{BPM: 180},
	Voices: []Voice{{N(C5, Eighth), N(G5, Quarter)}},
}

// Fault is played when capture had to be restarted.
var Fault = Tone{
	ID:    "fault",
	Name:  "Fault",
	Tempo: Tempo{BPM: 240},
	Voices: []Voice{
		{N(A4, Eighth), N(Rest, Sixteenth), N(A4, Eighth), N(Rest, Sixteenth), N(E4, Quarter)},
	},
}
