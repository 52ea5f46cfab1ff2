package executor

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// perform dispatches one action to its handler. In dry-run mode nothing is
// injected but waits still elapse.
func (e *Executor) perform(action domain.Action, dryRun bool, s domain.ExecutionSettings) error {
	if err := action.Validate(); err != nil {
		return err
	}

	switch a := action.(type) {
	case domain.ClickAction:
		return e.click(a, dryRun, s)
	case domain.WaitAction:
		return e.wait(a, dryRun)
	case domain.KeyPressAction:
		return e.keyPress(a, dryRun)
	case domain.ScrollAction:
		return e.scroll(a, dryRun)
	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownActionType, action)
	}
}

func (e *Executor) click(a domain.ClickAction, dryRun bool, s domain.ExecutionSettings) error {
	x, y := a.AbsX, a.AbsY
	if s.EnableRandomness && s.RandomnessRadius > 0 {
		r := s.RandomnessRadius
		x += e.rng.IntN(2*r+1) - r
		y += e.rng.IntN(2*r+1) - r
	}

	if dryRun {
		e.logger.Info("dry run: click",
			zap.String("button", string(a.Button)),
			zap.Int("x", x),
			zap.Int("y", y))
		return nil
	}

	if err := e.sink.MoveTo(x, y, s.Smoothing()); err != nil {
		return fmt.Errorf("move cursor to %d,%d: %w", x, y, err)
	}
	if err := e.sink.Click(a.Button); err != nil {
		return fmt.Errorf("%s click at %d,%d: %w", a.Button, x, y, err)
	}
	return nil
}

func (e *Executor) wait(a domain.WaitAction, dryRun bool) error {
	d := time.Duration(a.Seconds * float64(time.Second))
	if dryRun {
		e.logger.Info("dry run: wait", zap.Duration("duration", d))
	}
	if !e.sleep(d) {
		return errStopped
	}
	return nil
}

func (e *Executor) keyPress(a domain.KeyPressAction, dryRun bool) error {
	mods, key := a.Chord()

	if dryRun {
		e.logger.Info("dry run: keypress",
			zap.String("key", key),
			zap.Strings("modifiers", mods))
		return nil
	}

	if len(mods) == 0 {
		if err := e.sink.KeyPress(key); err != nil {
			return fmt.Errorf("press %q: %w", key, err)
		}
		return nil
	}
	if err := e.sink.KeyChord(mods, key); err != nil {
		return fmt.Errorf("press chord %q: %w", domain.CombinationKey(mods, key), err)
	}
	return nil
}

func (e *Executor) scroll(a domain.ScrollAction, dryRun bool) error {
	if dryRun {
		e.logger.Info("dry run: scroll", zap.Int("dx", a.DX), zap.Int("dy", a.DY))
		return nil
	}

	if a.DY != 0 {
		if err := e.sink.ScrollVertical(a.DY); err != nil {
			return fmt.Errorf("scroll vertically by %d: %w", a.DY, err)
		}
	}
	if a.DX != 0 {
		if err := e.sink.ScrollHorizontal(a.DX); err != nil {
			return fmt.Errorf("scroll horizontally by %d: %w", a.DX, err)
		}
	}
	return nil
}
