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

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/internal/notification"
	"github.com/pledgerhq/pledger/model"
)

// ProcessSubscriptionRenewal is the asynq handler for scheduled renewals.
// It records the next contribution for an active subscription and
// reschedules itself at the following charge date. Inactive subscriptions
// are skipped silently: cancellation between scheduling and execution is
// normal, not an error.
func (p *Pledger) ProcessSubscriptionRenewal(ctx context.Context, task *asynq.Task) error {
	var payload SubscriptionRenewalPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("renewal task has malformed payload: %v", err)
		return nil
	}

	sub, err := p.datasource.GetSubscriptionByID(ctx, payload.SubscriptionID)
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrNotFound {
			logrus.Warnf("renewal for unknown subscription %s, dropping", payload.SubscriptionID)
			return nil
		}
		return err
	}
	if !sub.Active {
		logrus.Infof("subscription %s is inactive, skipping renewal", sub.SubscriptionID)
		return nil
	}

	ord, err := p.datasource.GetOrderByID(ctx, sub.OrderID)
	if err != nil {
		return err
	}

	charge := contributionTransaction(ord, sub.Amount, sub.PaymentMethodID)
	charge.Description = "Subscription renewal"
	nextChargeAt := model.NextChargeDate(sub.NextChargeAt, sub.Interval)

	if err := p.datasource.RecordSubscriptionCharge(ctx, sub.SubscriptionID, charge, nextChargeAt); err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrInvalidState {
			// deactivated since the lookup above
			logrus.Infof("subscription %s went inactive, skipping renewal", sub.SubscriptionID)
			return nil
		}
		return err
	}

	if err := p.queue.queueSubscriptionRenewal(sub.SubscriptionID, nextChargeAt); err != nil {
		notification.NotifyError(err)
	}
	return nil
}
