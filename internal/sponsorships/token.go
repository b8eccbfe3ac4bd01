package sponsorships

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aura-platform/sponsorships/internal/models"
)

const (
	// TokenClearTextPrefix identifies the token scheme and version.
	TokenClearTextPrefix = "AuraOrganizationSponsorship_"
	// SelfHostedMarker precedes bodies encrypted with an installation API key.
	SelfHostedMarker = "Self-hosted"
	// FamiliesForEnterpriseTokenName is the first payload field.
	FamiliesForEnterpriseTokenName = "FamiliesForEnterprise"
	// ProtectorPurpose scopes the cloud protector key to sponsorship tokens.
	ProtectorPurpose = "OrganizationSponsorshipServiceDataProtector"
)

// Mode is the trust domain a deployment mints tokens in.
type Mode int

const (
	ModeCloud Mode = iota + 1
	ModeSelfHosted
)

func (m Mode) String() string {
	switch m {
	case ModeCloud:
		return "cloud"
	case ModeSelfHosted:
		return "self-hosted"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Protector seals values with a key only the cloud service holds.
type Protector interface {
	Protect(plaintext string) (string, error)
	Unprotect(protected string) (string, error)
}

// InstallationCipher seals values with an organization's installation API key.
type InstallationCipher interface {
	Encrypt(plaintext, apiKey string) (string, error)
	Decrypt(ciphertext, apiKey string) (string, error)
}

// TokenClaims is what a well-formed token asserts.
type TokenClaims struct {
	SponsorshipID       uuid.UUID
	PlanSponsorshipType models.PlanSponsorshipType
}

// Codec builds and parses redemption tokens. It does not consult storage; the
// service checks the claims against the live row.
type Codec struct {
	mode         Mode
	protector    Protector
	installation InstallationCipher
}

// NewCodec builds a codec for mode. Cloud deployments need a protector and
// self-hosted ones an installation cipher. The other primitive is optional and
// only used to verify tokens minted in the other trust domain.
func NewCodec(mode Mode, protector Protector, installation InstallationCipher) (*Codec, error) {
	switch mode {
	case ModeCloud:
		if protector == nil {
			return nil, fmt.Errorf("cloud token codec requires a protector")
		}
	case ModeSelfHosted:
		if installation == nil {
			return nil, fmt.Errorf("self-hosted token codec requires an installation cipher")
		}
	default:
		return nil, fmt.Errorf("unknown token mode %v", mode)
	}
	return &Codec{mode: mode, protector: protector, installation: installation}, nil
}

// Mode reports the trust domain tokens are minted in.
func (c *Codec) Mode() Mode { return c.mode }

// Mint builds a token for one sponsorship row.
func (c *Codec) Mint(sponsorshipID uuid.UUID, planType models.PlanSponsorshipType, sponsoringOrg *models.Organization) (string, error) {
	payload := strings.Join([]string{FamiliesForEnterpriseTokenName, sponsorshipID.String(), string(planType)}, " ")

	switch c.mode {
	case ModeSelfHosted:
		if sponsoringOrg == nil || sponsoringOrg.APIKey == "" {
			return "", fmt.Errorf("mint token: sponsoring organization has no installation key")
		}
		body, err := c.installation.Encrypt(payload, sponsoringOrg.APIKey)
		if err != nil {
			return "", fmt.Errorf("mint token: %w", err)
		}
		return TokenClearTextPrefix + SelfHostedMarker + body, nil
	default:
		body, err := c.protector.Protect(payload)
		if err != nil {
			return "", fmt.Errorf("mint token: %w", err)
		}
		return TokenClearTextPrefix + body, nil
	}
}

// Parse decrypts token and checks its shape. Every failure wraps ErrInvalidToken.
func (c *Codec) Parse(token string, sponsoringOrg *models.Organization) (TokenClaims, error) {
	body, ok := strings.CutPrefix(token, TokenClearTextPrefix)
	if !ok {
		return TokenClaims{}, fmt.Errorf("%w: missing prefix", ErrInvalidToken)
	}

	payload, err := c.decrypt(body, sponsoringOrg)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	parts := strings.Split(payload, " ")
	if len(parts) != 3 {
		return TokenClaims{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrInvalidToken, len(parts))
	}
	if parts[0] != FamiliesForEnterpriseTokenName {
		return TokenClaims{}, fmt.Errorf("%w: unknown token name", ErrInvalidToken)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: sponsorship id: %v", ErrInvalidToken, err)
	}
	planType, ok := models.ParsePlanSponsorshipType(parts[2])
	if !ok {
		return TokenClaims{}, fmt.Errorf("%w: unknown plan sponsorship type", ErrInvalidToken)
	}
	return TokenClaims{SponsorshipID: id, PlanSponsorshipType: planType}, nil
}

func (c *Codec) decrypt(body string, sponsoringOrg *models.Organization) (string, error) {
	if sealed, ok := strings.CutPrefix(body, SelfHostedMarker); ok {
		if c.installation == nil {
			return "", fmt.Errorf("self-hosted tokens not supported")
		}
		if sponsoringOrg == nil || sponsoringOrg.APIKey == "" {
			return "", fmt.Errorf("sponsoring organization has no installation key")
		}
		return c.installation.Decrypt(sealed, sponsoringOrg.APIKey)
	}
	if c.protector == nil {
		return "", fmt.Errorf("cloud tokens not supported")
	}
	return c.protector.Unprotect(body)
}
