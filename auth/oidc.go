package auth

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/types"
)

// Authenticate verifies a given OIDC ID-Token using the configured OIDC provider
// and returns the caller's identity. If no provider is configured (or no token is
// given), a nil identity is returned.
// TODO: the userId is set to the "email" property of the claim, this could be made configurable. But: ensure that this is unique across the user base!
func Authenticate(idToken, oidcProvider string, cfg *config.Config) (*types.Identity, error) {
	if idToken == "" || len(cfg.OIDCConfigs) == 0 {
		return nil, nil
	}
	var oidcConf *config.OIDCConfig
	for _, c := range cfg.OIDCConfigs {
		if c.Name == oidcProvider {
			oidcConf = &c
			break
		}
	}
	if oidcConf == nil {
		globals.AppLogger.Debug("no oidc config found for provider", "provider", oidcProvider)
		return nil, nil
	}
	provider, err := oidc.NewProvider(context.Background(), oidcConf.ProviderUrl)
	if err != nil {
		return nil, err
	}
	conf := oidc.Config{}
	if oidcConf.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = oidcConf.ClientId
	}
	verifier := provider.Verifier(&conf)
	verifiedIdToken, err := verifier.Verify(context.Background(), idToken)
	if err != nil {
		globals.AppLogger.Error("could not verify id token", "error", err)
		return nil, err
	}

	claims := struct {
		Email              string `json:"email"`
		SubscriptionActive *bool  `json:"subscription_active"`
		Scope              string `json:"scope"`
	}{}
	err = verifiedIdToken.Claims(&claims)
	if err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, nil
	}
	identity := &types.Identity{
		UserId:             claims.Email,
		SubscriptionActive: true,
	}
	if claims.SubscriptionActive != nil {
		identity.SubscriptionActive = *claims.SubscriptionActive
	}
	if claims.Scope != "" {
		identity.Scopes = strings.Fields(claims.Scope)
	}
	return identity, nil
}
