package service

import (
	"fmt"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// GrantRequest is the decoded body of a grant initiation call. It is
// validated structurally before the state machine ever sees it.
type GrantRequest struct {
	AccessToken GrantAccessTokenRequest `json:"access_token"`
	Interact    InteractRequest         `json:"interact"`
}

type GrantAccessTokenRequest struct {
	Access []Access `json:"access"`
}

type InteractRequest struct {
	Start  []string        `json:"start"`
	Finish *InteractFinish `json:"finish"`
}

// InteractFinish names where and how the client wants the interaction
// outcome delivered. Nonce is echoed into the finish hash so the client can
// verify the outcome belongs to its own request.
type InteractFinish struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Nonce  string `json:"nonce"`
}

func (r GrantRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AccessToken, validation.Required),
		validation.Field(&r.Interact, validation.Required),
	)
}

func (r GrantAccessTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Access, validation.Required, validation.Length(1, 0)),
	)
}

func (r InteractRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Start,
			validation.Required,
			validation.By(mustContainRedirect),
		),
		validation.Field(&r.Finish, validation.Required),
	)
}

func (f InteractFinish) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Method, validation.Required, validation.In("redirect")),
		validation.Field(&f.URI, validation.Required, validation.By(mustBeAbsoluteURL)),
		validation.Field(&f.Nonce, validation.Required),
	)
}

func (a Access) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Type, validation.Required),
		validation.Field(&a.Actions,
			validation.Required,
			validation.Each(validation.Required),
		),
	)
}

func mustContainRedirect(value interface{}) error {
	start, _ := value.([]string)
	for _, capability := range start {
		if capability == "redirect" {
			return nil
		}
	}
	return fmt.Errorf("must contain the redirect capability")
}

func mustBeAbsoluteURL(value interface{}) error {
	raw, _ := value.(string)
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}
