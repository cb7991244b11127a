package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/wolfeidau/fitout/internal/guard"
)

// LoginCmd checks credentials and shows where the dashboard would route.
type LoginCmd struct {
	SessionFlags `embed:""`

	RememberMe bool `help:"request a long lived session" name:"remember-me"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log, flush := c.setup(ctx, globals)
	defer flush()

	s, err := openSession(ctx, &c.SessionFlags, log)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	user, err := s.signIn(ctx, c.Email, c.Password, c.RememberMe)
	if err != nil {
		return err
	}

	// the guard sends a signed in user away from the login page to their dashboard
	g := guard.New(guard.NavigatorFunc(func(string) {}), guard.WithLogger(log))
	decision := g.Decide(s.provider.Snapshot(), "/login")

	w := tabwriter.NewWriter(globals.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tDASHBOARD")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", user.ID, user.Name, user.Email, user.Role, decision.Target)
	return w.Flush()
}
