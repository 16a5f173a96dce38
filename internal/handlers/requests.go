// internal/handlers/requests.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/cohesivestack/valgo"
	"github.com/jason-s-yu/nightstake/internal/game"
)

const maxBodyBytes = 64 << 10

var (
	addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)
	hexRegex     = regexp.MustCompile(`^(0x)?[0-9a-fA-F]+$`)
	codeRegex    = regexp.MustCompile(`^[A-Za-z0-9]{4,12}$`)
)

// validator is implemented by every inbound payload.
type validator interface {
	Validate() *valgo.Validation
}

// decode reads a JSON body into target and validates it. An empty body decodes to the zero
// value before validation.
func decode(r *http.Request, target validator) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body is not valid JSON: %w", err)
	}
	return validate(target)
}

func validate(target validator) error {
	if v := target.Validate(); !v.Valid() {
		return v.Error()
	}
	return nil
}

type challengeRequest struct {
	Address string `json:"address"`
}

func (r *challengeRequest) Validate() *valgo.Validation {
	return valgo.Is(valgo.String(r.Address, "address", "Address").MatchingTo(addressRegex))
}

type sessionRequest struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

func (r *sessionRequest) Validate() *valgo.Validation {
	return valgo.
		Is(valgo.String(r.Address, "address", "Address").MatchingTo(addressRegex)).
		Is(valgo.String(r.PublicKey, "publicKey", "Public key").MatchingTo(hexRegex)).
		Is(valgo.String(r.Signature, "signature", "Signature").MatchingTo(hexRegex))
}

type createRequest struct {
	StakeAmount     *uint64             `json:"stakeAmount,omitempty"`
	MinParticipants *int                `json:"minPlayers,omitempty"`
	MaxParticipants *int                `json:"maxPlayers,omitempty"`
	Public          bool                `json:"public"`
	Settings        *game.SettingsPatch `json:"settings,omitempty"`
}

// Validate only checks shapes; the Manager owns the bounds.
func (r *createRequest) Validate() *valgo.Validation {
	v := valgo.New()
	if r.StakeAmount != nil {
		v.Is(valgo.Uint64(*r.StakeAmount, "stakeAmount", "Stake amount").GreaterThan(0))
	}
	if r.MinParticipants != nil {
		v.Is(valgo.Int(*r.MinParticipants, "minPlayers", "Min players").GreaterThan(0))
	}
	if r.MaxParticipants != nil {
		v.Is(valgo.Int(*r.MaxParticipants, "maxPlayers", "Max players").GreaterThan(0))
	}
	return v
}

func (r *createRequest) toGame(creator string) game.CreateRequest {
	return game.CreateRequest{
		Creator:         creator,
		StakeAmount:     r.StakeAmount,
		MinParticipants: r.MinParticipants,
		MaxParticipants: r.MaxParticipants,
		Public:          r.Public,
		Settings:        r.Settings,
	}
}

type joinCodeRequest struct {
	Code string `json:"code"`
}

func (r *joinCodeRequest) Validate() *valgo.Validation {
	return valgo.Is(valgo.String(r.Code, "code", "Join code").MatchingTo(codeRegex))
}

type stakeRequest struct {
	TxHash string `json:"txHash"`
}

func (r *stakeRequest) Validate() *valgo.Validation {
	return valgo.Is(valgo.String(r.TxHash, "txHash", "Transaction hash").MatchingTo(hexRegex))
}

type targetRequest struct {
	Target string `json:"target"`
}

func (r *targetRequest) Validate() *valgo.Validation {
	return valgo.Is(valgo.String(r.Target, "target", "Target").Not().Blank())
}

// nightRequest allows an empty target: passive roles and abstaining killers submit nothing.
type nightRequest struct {
	Target string `json:"target,omitempty"`
}

func (r *nightRequest) Validate() *valgo.Validation {
	v := valgo.New()
	if r.Target != "" {
		v.Is(valgo.String(r.Target, "target", "Target").MaxLength(66))
	}
	return v
}

type taskRequest struct {
	Answer string `json:"answer"`
}

func (r *taskRequest) Validate() *valgo.Validation {
	return valgo.Is(valgo.String(r.Answer, "answer", "Answer").Not().Blank().MaxLength(256))
}

type settingsRequest game.SettingsPatch

func (r *settingsRequest) Validate() *valgo.Validation {
	v := valgo.New()
	for name, val := range map[string]*int{
		"nightPhaseDuration":      r.NightSeconds,
		"resolutionPhaseDuration": r.ResolutionSeconds,
		"taskPhaseDuration":       r.TaskSeconds,
		"votingPhaseDuration":     r.VotingSeconds,
		"maxTaskCount":            r.TaskThreshold,
		"minPlayers":              r.MinParticipants,
	} {
		if val != nil {
			v.Is(valgo.Int(*val, name).GreaterThan(0))
		}
	}
	return v
}
