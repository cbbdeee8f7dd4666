/*
Copyright 2025 Pledger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/pledgerhq/pledger/config"
	"github.com/pledgerhq/pledger/internal/notification"
	"github.com/pledgerhq/pledger/internal/request"
)

// Mail templates rendered by the mailer webhook. The worker only ships the
// template name and its data; rendering happens downstream.
const (
	MailTemplateVirtualCardInvite  = "virtualcard.invite"
	MailTemplateOrganizationHello  = "organization.created"
	MailTemplateExpenseStatus      = "expense.status"
	MailTemplateContributionThanks = "contribution.thanks"
)

// MailMessage is the payload enqueued on the mail queue and POSTed to the
// configured mailer webhook.
type MailMessage struct {
	To       string                 `json:"to"`
	Subject  string                 `json:"subject"`
	Template string                 `json:"template"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// ProcessMail is the asynq handler for the mail queue. It POSTs the message
// to the mailer webhook, retrying with exponential backoff before handing
// the task back to asynq for redelivery.
func ProcessMail(_ context.Context, task *asynq.Task) error {
	var msg MailMessage
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		logrus.Errorf("mail task has malformed payload: %v", err)
		// Malformed payloads never become deliverable; drop the task.
		return nil
	}

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	if cnf.Notification.Mailer.Url == "" {
		logrus.Warnf("no mailer configured, dropping mail %s -> %s", msg.Template, msg.To)
		return nil
	}

	operation := func() error {
		return postMail(cnf, msg)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, policy); err != nil {
		notification.NotifyError(err)
		return err
	}
	return nil
}

func postMail(cnf *config.Configuration, msg MailMessage) error {
	body := map[string]interface{}{
		"from":     cnf.Notification.Mailer.From,
		"to":       msg.To,
		"subject":  msg.Subject,
		"template": msg.Template,
		"data":     msg.Data,
	}
	payload, err := request.ToJsonReq(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", cnf.Notification.Mailer.Url, payload)
	if err != nil {
		return err
	}
	for key, value := range cnf.Notification.Mailer.Headers {
		req.Header.Set(key, value)
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mailer webhook returned %d", resp.StatusCode)
	}
	logrus.Infof("mail delivered: %s -> %s", msg.Template, msg.To)
	return nil
}

// sendMail enqueues a notification, logging instead of failing the caller.
func (p *Pledger) sendMail(msg MailMessage) {
	if msg.To == "" {
		return
	}
	if err := p.queue.queueMail(msg); err != nil {
		notification.NotifyError(err)
	}
}
