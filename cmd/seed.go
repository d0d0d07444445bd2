package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/socialdist/fednode/auth"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/types"
)

// seed writes the self node, the configured peers and the accounts peers log in with.
func seed(ctx context.Context, s *store.Store, config Config) error {
	self := types.Node{
		Name:        "local",
		DisplayName: "local",
		URL:         config.Node.HostAPIURL,
		Flavor:      types.FlavorLocal,
	}
	if err := s.UpsertNode(ctx, self); err != nil {
		return errors.Wrap(err, "seed self node")
	}

	for _, peer := range config.Peers {
		flavor, err := types.ParseFlavor(peer.Flavor)
		if err != nil {
			return errors.Wrapf(err, "peer %s", peer.Name)
		}
		if flavor == types.FlavorLocal {
			return errors.Wrapf(types.ErrValidation, "peer %s cannot use the local flavor", peer.Name)
		}
		err = s.UpsertNode(ctx, types.Node{
			Name:        peer.Name,
			DisplayName: peer.DisplayName,
			URL:         peer.URL,
			Password:    peer.Password,
			Flavor:      flavor,
			Disabled:    peer.Disabled,
		})
		if err != nil {
			return errors.Wrapf(err, "seed peer %s", peer.Name)
		}
		log.Info().Str("peer", peer.Name).Str("url", peer.URL).Str("flavor", string(flavor)).Msg("peer registered")
	}

	for _, account := range config.NodeAccounts {
		hash, err := auth.HashPassword(account.Password)
		if err != nil {
			return err
		}
		err = s.UpsertNodeAccount(ctx, types.Author{
			ID:           "node-" + account.DisplayName,
			DisplayName:  account.DisplayName,
			URL:          types.LocalAuthorURL(config.Node.HostAPIURL, "node-"+account.DisplayName),
			Host:         config.Node.HostAPIURL,
			IsNode:       true,
			IsActive:     true,
			PasswordHash: hash,
		})
		if err != nil {
			return errors.Wrapf(err, "seed node account %s", account.DisplayName)
		}
	}
	return nil
}
