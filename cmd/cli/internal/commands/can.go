package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/wolfeidau/fitout/internal/client"
	"github.com/wolfeidau/fitout/internal/permission"
)

var errPermissionDenied = errors.New("one or more permissions denied")

// CanCmd evaluates permission ids against the signed in user's role.
type CanCmd struct {
	SessionFlags `embed:""`

	Permissions []string `arg:"" help:"permission ids to check"`
	Strict      bool     `help:"exit with an error when any permission is denied"`
}

func (c *CanCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log, flush := c.setup(ctx, globals)
	defer flush()

	// role trees are served with a max-age, so cache them
	s, err := openSession(ctx, &c.SessionFlags, log, client.WithCaching())
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	user, err := s.signIn(ctx, c.Email, c.Password, false)
	if err != nil {
		return err
	}

	var tree []permission.Node
	if user.RoleID != "" {
		role, err := permission.LoadRole(ctx, s.client, user.RoleID)
		if err != nil {
			return err
		}
		tree = role.Permissions
	}

	denied := 0
	w := tabwriter.NewWriter(globals.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERMISSION\tGRANTED")
	for _, id := range c.Permissions {
		granted := permission.CheckWithAdminBypass(id, tree, user.IsAdmin())
		if !granted {
			denied++
		}
		fmt.Fprintf(w, "%s\t%t\n", id, granted)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if c.Strict && denied > 0 {
		return fmt.Errorf("%w: %d of %d", errPermissionDenied, denied, len(c.Permissions))
	}
	return nil
}
