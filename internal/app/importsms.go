package app

import (
	"context"
	"fmt"

	"gigawatch/internal/carrier"
	"gigawatch/internal/metrics"
)

// ImportSMS re-parses every SMS currently in the router inbox and inserts
// every decoded observation. Conflicts on date_time are ignored, so the
// operation is safe to repeat.
func (a *App) ImportSMS(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway, err := a.newGateway()
	if err != nil {
		return err
	}

	smses, err := gateway.ListInbox(ctx)
	if err != nil {
		return fmt.Errorf("fetch SMS inbox: %w", err)
	}

	processed := 0
	inserted := 0
	failed := 0
	for _, sms := range smses {
		processed++
		ds := carrier.ParseSms(sms)
		if ds == nil {
			continue
		}
		_, ok, err := store.InsertDataStatus(ctx, ds.RemainingPercentage, ds.RemainingDataMB, ds.DateTime)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Time("date_time", ds.DateTime).Msg("db insert error")
			continue
		}
		if ok {
			inserted++
			metrics.ObservationsInserted.Inc()
		}
	}

	a.Logger.Info().Int("processed", processed).Int("inserted", inserted).Int("failed", failed).Msg("import complete")
	if failed > 0 {
		return fmt.Errorf("%d of %d inserts failed", failed, processed)
	}
	return nil
}
