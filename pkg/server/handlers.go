package server

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/device"
	"github.com/solarlink/solarlink-go/pkg/log"
	"github.com/solarlink/solarlink-go/pkg/metrics"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/wire"
)

func (c *Coordinator) handleSetup(cl *call) (func(context.Context) error, error) {
	var req profile.SetupRequest
	if err := profile.UnmarshalRequest(cl.plaintext, &req); err != nil {
		return nil, err
	}

	owner, err := c.store.Setup(req.ID, req.Name, req.Secret)
	c.logTransition(cl, log.TransitionSetup, owner.ID, req.Name, credential.PermissionOwner.String(), err)
	if err != nil {
		return nil, err
	}

	cl.caller = owner.ID
	c.republish()
	return nil, nil
}

func (c *Coordinator) handleInvite(cl *call) (func(context.Context) error, error) {
	var req profile.InviteRequest
	if err := profile.UnmarshalRequest(cl.plaintext, &req); err != nil {
		return nil, err
	}

	inv, err := c.store.Invite(cl.caller, credential.NewInvitation{
		ID:         req.ID,
		Name:       req.Name,
		Permission: req.Permission,
		Secret:     req.Secret,
		ExpiresAt:  req.ExpiresAt,
	})
	c.logTransition(cl, log.TransitionInvite, inv.ID, req.Name, req.Permission.String(), err)
	if err != nil {
		return nil, err
	}

	c.republish()
	return nil, nil
}

func (c *Coordinator) handleConfirm(cl *call) (func(context.Context) error, error) {
	var req profile.ConfirmRequest
	if err := profile.UnmarshalRequest(cl.plaintext, &req); err != nil {
		return nil, err
	}

	cred, err := c.store.Confirm(cl.caller, cl.env, req.Secret)
	c.logTransition(cl, log.TransitionConfirm, cl.caller, cred.Name, cred.Permission.String(), err)
	if err != nil {
		return nil, err
	}

	c.republish()
	return nil, nil
}

func (c *Coordinator) handleRevoke(cl *call) (func(context.Context) error, error) {
	var req profile.RevokeRequest
	if err := profile.UnmarshalRequest(cl.plaintext, &req); err != nil {
		return nil, err
	}

	err := c.store.Revoke(cl.caller, req.ID)
	c.logTransition(cl, log.TransitionRevoke, req.ID, "", "", err)
	if err != nil {
		return nil, err
	}

	for sess := range c.sessions {
		if sess.deauthenticate(req.ID) {
			c.logger.Info("session lost its credential", "conn", sess.ID(), "credential", req.ID)
		}
	}
	if req.ID == cl.caller {
		cl.caller = uuid.Nil
	}

	c.republish()
	return nil, nil
}

// handleCommand forwards a decrypted command to the inverter. The query and
// the response publication run after the coordinator lock is released; the
// response is sealed with the caller's secret and pushed in chunks.
func (c *Coordinator) handleCommand(cl *call) (func(context.Context) error, error) {
	if !utf8.Valid(cl.plaintext) || len(cl.plaintext) == 0 {
		return nil, fmt.Errorf("%w: command is not a UTF-8 string", attribute.ErrInvalidValue)
	}
	command := string(cl.plaintext)
	caller := cl.caller

	secret, ok := c.store.Secret(caller)
	if !ok {
		return nil, ErrUnknownCredential
	}
	if c.config.Device == nil {
		return nil, fmt.Errorf("%w: no device attached", device.ErrIncompatibleDevice)
	}

	return func(ctx context.Context) error {
		start := time.Now()
		resp, err := device.Query(ctx, c.config.Device, command, c.config.QueryTimeout)
		metrics.DeviceQueryDuration.WithLabelValues(command, metrics.Result(err)).
			Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			c.logger.Warn("command failed", "command", command, "caller", caller, "error", err)
			return err
		}

		sealed, err := auth.Encrypt(secret, caller, []byte(resp))
		if err != nil {
			return err
		}
		data, err := wire.Marshal(sealed)
		if err != nil {
			return err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, chunk := range profile.Chunks(data, c.config.MaxChunk) {
			if err := c.table.Push(profile.CommandResponseType, attribute.Data(chunk)); err != nil {
				return err
			}
		}
		c.logger.Debug("command answered", "command", command, "caller", caller, "size", len(resp))
		return nil
	}, nil
}

// handleIdentify blinks once: a true write is logged with the caller's name
// and the flag is reset.
func (c *Coordinator) handleIdentify(cl *call) (func(context.Context) error, error) {
	on, _ := cl.value.AsBool()
	if !on {
		return nil, c.table.Set(profile.IdentifyType, attribute.Bool(false))
	}

	cred, _ := c.store.Credential(cl.caller)
	c.logger.Info("identify", "credential", cred.ID, "name", cred.Name)
	c.lastIdentify.caller = cred.ID
	c.lastIdentify.at = c.config.Clock()

	if err := c.table.Set(profile.IdentifyType, attribute.Bool(true)); err != nil {
		return nil, err
	}
	return nil, c.table.Set(profile.IdentifyType, attribute.Bool(false))
}

func (c *Coordinator) handlePowerState(cl *call) (func(context.Context) error, error) {
	if err := c.table.Set(profile.PowerStateType, cl.value); err != nil {
		return nil, err
	}

	on, _ := cl.value.AsBool()
	state := "off"
	if on {
		state = "on"
	}
	cred, _ := c.store.Credential(cl.caller)
	c.logger.Info("outlet switched", "state", state, "credential", cred.ID, "name", cred.Name)
	return nil, nil
}
