package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

const maxVolume = 150

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

// Ducker lowers every PulseAudio sink input except our own while the
// assistant talks, and restores them afterwards.
type Ducker struct {
	mu       sync.Mutex
	active   bool
	original map[int]int // sink input id -> volume before ducking

	selfNames []string // application.name values left untouched
	factor    float64
	minVolume int
	fade      time.Duration

	pactl func(ctx context.Context, args ...string) ([]byte, error)
}

func NewDucker(selfNames []string, factor float64, fade time.Duration) *Ducker {
	return &Ducker{
		original:  make(map[int]int),
		selfNames: append([]string(nil), selfNames...),
		factor:    factor,
		minVolume: 5,
		fade:      fade,
		pactl:     runPactl,
	}
}

func runPactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Duck fades other streams to factor times their current volume.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)

	var targets []fadeTarget
	for _, in := range inputs {
		if d.isSelf(in) {
			continue
		}

		to := int(math.Round(float64(in.Volume) * d.factor))
		to = min(max(to, d.minVolume), maxVolume)

		d.original[in.ID] = in.Volume
		targets = append(targets, fadeTarget{id: in.ID, from: in.Volume, to: to})
	}

	if err := d.fadeTo(ctx, targets); err != nil {
		return err
	}

	d.active = true
	return nil
}

// Restore fades ducked streams back to their original volume. Streams that
// appeared after Duck are left alone.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	var targets []fadeTarget
	for _, in := range inputs {
		orig, ok := d.original[in.ID]
		if !ok || d.isSelf(in) {
			continue
		}
		targets = append(targets, fadeTarget{id: in.ID, from: in.Volume, to: orig})
	}

	if err := d.fadeTo(ctx, targets); err != nil {
		return err
	}

	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(in sinkInput) bool {
	for _, name := range d.selfNames {
		if in.AppName == name {
			return true
		}
	}
	return false
}

// fadeTo steps every target from its current to its goal volume over the
// configured fade duration.
func (d *Ducker) fadeTo(ctx context.Context, targets []fadeTarget) error {
	if len(targets) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond

	steps := max(int(d.fade/minStep), 1)
	stepDur := d.fade / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := d.setVolume(ctx, t.id, v); err != nil {
				return err
			}
		}

		if i < steps && stepDur > 0 {
			time.Sleep(stepDur)
		}
	}

	return nil
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), maxVolume)
	if _, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent)); err != nil {
		return fmt.Errorf("set volume id=%d: %w", id, err)
	}
	return nil
}

// parseSinkInputs reads the human-readable `pactl list sink-inputs` output.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []sinkInput
	for _, block := range blocks[1:] {
		header, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && in.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			}

			if rest, ok := strings.CutPrefix(line, "application.name = "); ok && in.AppName == "" {
				in.AppName = strings.Trim(rest, `"`)
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}

	return res
}
