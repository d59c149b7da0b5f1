package user

import (
	"context"

	"github.com/donhautea/SSS-CMS/core"
)

type serviceMock struct {
	service
}

func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			conf:    conf,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	now := nowFunc().UTC()
	token, err := generateResetToken(resetTokenLength)
	if err != nil {
		return err
	}
	if _, err = svc.repo.CreateResetToken(ctx, ResetToken{
		UserID:    usr.ID,
		Token:     token,
		ExpiresAt: now.Add(svc.conf.PasswordResetTimeout),
		CreatedAt: now,
	}); err != nil {
		return err
	}

	// run synchronously
	svc.sendPasswordResetMail(usr, token)
	return nil
}
