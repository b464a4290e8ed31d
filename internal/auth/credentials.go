package auth

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Credential is anything the fund can hand over to an account.
type Credential interface {
	CredentialKind() string
}

// AdminCredential identifies one voting admin. Only an Issuer can mint a usable one; the
// zero value never verifies.
type AdminCredential struct {
	id     uint8
	issuer uuid.UUID
}

// ID returns the numeric admin identity carried by the credential.
func (c AdminCredential) ID() uint8 { return c.id }

func (c AdminCredential) CredentialKind() string { return "admin" }

func (c AdminCredential) String() string {
	return fmt.Sprintf("admin#%d", c.id)
}

// BotCredential is the lower-trust credential used by the operator bot.
type BotCredential struct {
	serial uuid.UUID
	issuer uuid.UUID
}

func (c BotCredential) CredentialKind() string { return "bot" }

// IsZero reports whether c was never minted.
func (c BotCredential) IsZero() bool { return c.serial == uuid.Nil }

// BadgeKind distinguishes the control credentials held in custody by the fund.
type BadgeKind string

const (
	// ValidatorOwnerBadge controls the validator node and its owner stake units.
	ValidatorOwnerBadge BadgeKind = "validator_owner"
	// FundManagerBadge authorizes every call made to position adapters.
	FundManagerBadge BadgeKind = "fund_manager"
	// AccountControlBadge controls the custody account of a single position adapter.
	AccountControlBadge BadgeKind = "account_control"
)

// Badge is a transferable control credential.
type Badge struct {
	Kind BadgeKind `json:"kind"`
	ID   string    `json:"id"`
}

func (b Badge) CredentialKind() string { return string(b.Kind) }

// Issuer mints and verifies admin and bot credentials for one fund instance.
type Issuer struct {
	id          uuid.UUID
	admins      map[uint8]struct{}
	bots        map[uuid.UUID]struct{}
	lastAdminID uint8
}

// NewIssuer creates an issuer with a fresh identity and no credentials.
func NewIssuer() *Issuer {
	return &Issuer{
		id:     uuid.New(),
		admins: make(map[uint8]struct{}),
		bots:   make(map[uuid.UUID]struct{}),
	}
}

// MintAdmin mints the next admin credential. Ids start at 1 and are never reused.
func (i *Issuer) MintAdmin() (AdminCredential, error) {
	if i.lastAdminID == ^uint8(0) {
		return AdminCredential{}, ErrAdminIDsExhausted
	}
	i.lastAdminID++
	i.admins[i.lastAdminID] = struct{}{}
	return AdminCredential{id: i.lastAdminID, issuer: i.id}, nil
}

// RevokeAdmin destroys the credential with the given id.
func (i *Issuer) RevokeAdmin(id uint8) error {
	if _, ok := i.admins[id]; !ok {
		return fmt.Errorf("%w: admin #%d", ErrUnknownAdmin, id)
	}
	delete(i.admins, id)
	return nil
}

// MintBot mints a new bot credential.
func (i *Issuer) MintBot() BotCredential {
	cred := BotCredential{serial: uuid.New(), issuer: i.id}
	i.bots[cred.serial] = struct{}{}
	return cred
}

// VerifyAdmin checks the credential and returns its admin id.
func (i *Issuer) VerifyAdmin(cred AdminCredential) (uint8, error) {
	if cred.issuer != i.id {
		return 0, ErrInvalidCredential
	}
	if _, ok := i.admins[cred.id]; !ok {
		return 0, fmt.Errorf("%w: admin #%d was revoked", ErrInvalidCredential, cred.id)
	}
	return cred.id, nil
}

// VerifyBot checks a bot credential.
func (i *Issuer) VerifyBot(cred BotCredential) error {
	if cred.issuer != i.id {
		return ErrInvalidCredential
	}
	if _, ok := i.bots[cred.serial]; !ok {
		return ErrInvalidCredential
	}
	return nil
}

// AdminCount is the number of live admin credentials.
func (i *Issuer) AdminCount() uint8 {
	return uint8(len(i.admins))
}

// AdminIDs returns the live admin ids in ascending order.
func (i *Issuer) AdminIDs() []uint8 {
	ids := make([]uint8, 0, len(i.admins))
	for id := range i.admins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// Clone returns a deep copy sharing the same identity.
func (i *Issuer) Clone() *Issuer {
	c := &Issuer{
		id:          i.id,
		admins:      make(map[uint8]struct{}, len(i.admins)),
		bots:        make(map[uuid.UUID]struct{}, len(i.bots)),
		lastAdminID: i.lastAdminID,
	}
	for id := range i.admins {
		c.admins[id] = struct{}{}
	}
	for s := range i.bots {
		c.bots[s] = struct{}{}
	}
	return c
}
