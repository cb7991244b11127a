package commands

import (
	"context"
	"fmt"
)

// LogoutAllCmd revokes every session of the account, on every device.
type LogoutAllCmd struct {
	SessionFlags `embed:""`
}

func (c *LogoutAllCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log, flush := c.setup(ctx, globals)
	defer flush()

	s, err := openSession(ctx, &c.SessionFlags, log)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	user, err := s.signIn(ctx, c.Email, c.Password, false)
	if err != nil {
		return err
	}

	if err := s.provider.LogoutAll(ctx); err != nil {
		return fmt.Errorf("failed to log out all sessions: %w", err)
	}

	fmt.Fprintf(globals.out(), "Logged out every session of %s\n", user.Email)
	return nil
}
