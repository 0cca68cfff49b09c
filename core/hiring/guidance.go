package hiring

import (
	"fmt"
	"time"
)

// JobNextSteps suggests the operations that make sense for j right now.
func JobNextSteps(j Job, now time.Time) []string {
	switch j.Status {
	case JobPending:
		return []string{
			"Wait for the human to accept or reject; poll get_job or rely on the callback webhook.",
			"Use send_message to clarify scope, or cancel_job to withdraw the offer.",
		}
	case JobAccepted:
		if j.Terms.Mode == PaymentStream && j.Stream != nil {
			if j.Stream.Method == MethodSuperfluid {
				return []string{
					"Create a Superfluid flow to the human's wallet (see human_payment), then call start_stream.",
				}
			}
			return []string{
				"Call start_stream with your sender address and network to open tick #1.",
			}
		}
		return []string{
			fmt.Sprintf("Pay %s to one of the human's wallets (see human_payment), then call mark_job_paid.", j.Price),
		}
	case JobPaid:
		return []string{"Wait for the human to mark the job complete, then leave_review."}
	case JobStreaming:
		s := j.Stream
		if s == nil {
			return nil
		}
		if s.Method == MethodSuperfluid {
			steps := []string{"The flow pays automatically; pause_stream after deleting the flow, or stop_stream to finish."}
			if s.Snapshot(now).MaxTicksReached {
				steps = append([]string{"The agreed number of intervals has elapsed; delete the flow and call stop_stream."}, steps...)
			}
			return steps
		}
		if s.PendingTick != nil {
			return []string{
				fmt.Sprintf("Send %s for tick #%d before %s, then call record_stream_tick.", s.Rate, s.PendingTick.Number, s.PendingTick.DueAt.Format(time.RFC3339)),
				"Use pause_stream to skip the pending tick or stop_stream to finish.",
			}
		}
		return []string{"Call stop_stream to finish the stream."}
	case JobPaused:
		if j.Stream != nil && j.Stream.Method == MethodSuperfluid {
			return []string{"Create a fresh flow and call resume_stream, or stop_stream to finish."}
		}
		return []string{"Call resume_stream to open a new tick, or stop_stream to finish."}
	case JobCompleted:
		if j.Review == nil {
			return []string{"Call leave_review with a rating from 1 to 5."}
		}
		return []string{"This job is complete and reviewed."}
	case JobRejected:
		return []string{"The human declined. Use search_humans to find someone else."}
	case JobCancelled:
		return []string{"This job was cancelled."}
	case JobDisputed:
		return []string{"This job is under dispute; resolution is handled by Human Pages support. Poll get_job for updates."}
	}
	return nil
}

// AgentNextSteps suggests how an agent can unlock or extend its tier.
func AgentNextSteps(a Agent, now time.Time) []string {
	if a.EffectiveStatus(now) != AgentActive {
		return []string{
			"Activate for free: request_activation_code, post the code publicly, then verify_social_activation (BASIC).",
			"Or pay: get_payment_activation, send the deposit, then verify_payment_activation (PRO).",
			"Any gated call can also carry a payment_proof to pay per use.",
		}
	}
	var steps []string
	if a.Tier == TierBasic && !a.PromoClaimed {
		steps = append(steps, "claim_promo_upgrade may upgrade you to PRO for free while slots last.")
	}
	if a.Domain != "" && !a.DomainVerified {
		steps = append(steps, fmt.Sprintf("Publish TXT record humanpages-verify=%s on %s, then verify_agent_domain.", a.DomainToken, a.Domain))
	}
	steps = append(steps, "Use search_humans or create_listing to find people to hire.")
	return steps
}

// ListingNextSteps suggests follow-ups for a listing owner.
func ListingNextSteps(l Listing, now time.Time) []string {
	switch l.EffectiveStatus(now) {
	case ListingOpen:
		if l.ApplicationCount > 0 {
			return []string{"Review applicants with list_listing_applications, then make_listing_offer."}
		}
		return []string{"Wait for applications; cancel_listing withdraws it."}
	case ListingClosed:
		return []string{"An offer was made; track it with get_job."}
	case ListingExpired:
		return []string{"The listing expired. Post a new one with create_listing."}
	}
	return nil
}
