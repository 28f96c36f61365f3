package services

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/storage"
)

// SettlementService exports completed subscription payments as ISO 20022
// messages for the acquiring bank and marks them settled once a batch is
// produced.
type SettlementService struct {
	store storage.PaymentStore
	bic   string
	now   func() time.Time
}

func NewSettlementService(store storage.PaymentStore, bic string) *SettlementService {
	return &SettlementService{
		store: store,
		bic:   bic,
		now:   time.Now,
	}
}

const settlementBatchLimit = 100

// ExportBatch builds one pacs.008 per completed payment, marks each
// payment settled, and returns the XML documents.
func (s *SettlementService) ExportBatch(ctx context.Context) ([]string, []models.Payment, error) {
	payments, err := s.store.ListPaymentsByStatus(ctx, models.PaymentStatusCompleted, settlementBatchLimit)
	if err != nil {
		return nil, nil, err
	}

	documents := make([]string, 0, len(payments))
	settled := make([]models.Payment, 0, len(payments))
	for i := range payments {
		p := &payments[i]

		doc, err := s.CreatePacs008(p)
		if err != nil {
			return nil, nil, fmt.Errorf("payment %s: %w", p.ID, err)
		}
		xmlData, err := s.ConvertToXML(doc)
		if err != nil {
			return nil, nil, fmt.Errorf("payment %s: %w", p.ID, err)
		}

		settledAt := s.now().UTC()
		if err := s.store.UpdatePaymentStatus(ctx, p.ID, models.PaymentStatusSettled, &settledAt); err != nil {
			return nil, nil, fmt.Errorf("payment %s: %w", p.ID, err)
		}

		p.Status = models.PaymentStatusSettled
		p.SettledAt = &settledAt
		documents = append(documents, xmlData)
		settled = append(settled, *p)
	}

	return documents, settled, nil
}

// ExportSettlements runs a settlement export on demand
// @Summary Export settlements
// @Description Export completed payments as pacs.008 messages and mark them settled
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{settled=int,messageType=string,documents=[]string}
// @Failure 500 {object} ErrorResponse
// @Router /settlements/export [post]
func (s *SettlementService) ExportSettlements(w http.ResponseWriter, r *http.Request) {
	documents, settled, err := s.ExportBatch(r.Context())
	if err != nil {
		log.Printf("[SETTLEMENT] Export failed: %v", err)
		SendErrorCode(w, "Settlement export failed", "SETTLEMENT_ERROR", http.StatusInternalServerError)
		return
	}

	ids := make([]string, len(settled))
	for i, p := range settled {
		ids[i] = p.ID
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"settled":     len(settled),
		"paymentIds":  ids,
		"messageType": "pacs.008.001.08",
		"documents":   documents,
	})
}

// AcknowledgePayment produces a pacs.002 status report for one payment
// @Summary Acknowledge settlement
// @Description Produce a pacs.002 status report for a settled payment
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment id"
// @Success 200 {object} object{messageType=string,xml=string}
// @Failure 404 {object} ErrorResponse
// @Router /settlements/{id}/ack [post]
func (s *SettlementService) AcknowledgePayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	payment, err := s.store.GetPayment(r.Context(), id)
	if err != nil {
		SendErrorCode(w, "Payment not found", "NOT_FOUND", http.StatusNotFound)
		return
	}

	doc, err := s.CreatePacs002(payment, "ACSC")
	if err != nil {
		SendErrorCode(w, "Failed to build status report", "SETTLEMENT_ERROR", http.StatusInternalServerError)
		return
	}
	xmlData, err := s.ConvertToXML(doc)
	if err != nil {
		SendErrorCode(w, "Failed to build status report", "SETTLEMENT_ERROR", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"messageType": "pacs.002.001.08",
		"xml":         xmlData,
	})
}

// CreatePacs008 builds a pacs.008 FIToFICustomerCreditTransfer for one payment
func (s *SettlementService) CreatePacs008(p *models.Payment) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgId := uuid.New().String()
	creDtTm := s.now()
	settlementDate := s.now()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(p.Currency),
				Value: p.Amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG", // Clearing
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(p.ID)}[0],
					EndToEndId: common.Max35Text(p.ReferenceID),
					TxId:       &[]common.Max35Text{common.Max35Text(p.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(p.Currency),
					Value: p.Amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.bic)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(p.UserID)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(p.CardBank),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(p.PlanID)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 builds a pacs.002 payment status report
func (s *SettlementService) CreatePacs002(p *models.Payment, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := uuid.New().String()
	creDtTm := s.now()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(p.ID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(p.ReferenceID)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(p.ID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0], // ACCP, RJCT, ACSC, etc.
			},
		},
	}

	return doc, nil
}

// ConvertToXML renders an ISO 20022 document as an XML string
func (s *SettlementService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
