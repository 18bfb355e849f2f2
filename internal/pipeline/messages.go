package pipeline

import "fmt"

// Fixed texts delivered by the pipeline. None of them commit to an amount,
// a refund or a policy.
const (
	QuotaNotice         = "本月的自動回覆額度已用完，您的訊息已收到，客服人員將盡快與您聯繫。"
	HandoffAck          = "您的訊息已收到，這個問題需要由專人協助處理，我們會盡快回覆您。"
	RefundAck           = "已收到您的退款申請，我們會由專人確認訂單資料後盡快回覆您。"
	OrderNumberRequest  = "已收到您的退款需求。為了協助您處理，請提供您的訂單編號，謝謝！"
	LowConfidenceNotice = "這個問題我們想給您更準確的答覆，已轉由專人確認，請稍候。"
)

// refundConfirmationDraft is the reply suggested to staff for a refund
// request that carries an extracted order number.
func refundConfirmationDraft(orderNumber string) string {
	return fmt.Sprintf("您好，已收到訂單 %s 的退款申請。我們已確認訂單資料，退款將依照退款政策辦理，處理進度會再通知您。", orderNumber)
}
