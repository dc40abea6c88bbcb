package commands

import (
	"fmt"

	"ovpn-issuer/internal/version"
)

type TokenCmd struct{}

func (c *TokenCmd) Run(globals *Globals) error {
	a, err := globals.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	token, err := a.auth.RotateToken()
	if err != nil {
		return fmt.Errorf("failed to rotate token: %w", err)
	}
	fmt.Fprintln(a.out, token)
	return nil
}

type VersionCmd struct {
	JSON bool `help:"Print as JSON."`
}

func (c *VersionCmd) Run(globals *Globals) error {
	info := version.Current()
	out := globals.stdout()
	if !c.JSON {
		_, err := fmt.Fprintln(out, info.String())
		return err
	}
	data, err := info.JSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
