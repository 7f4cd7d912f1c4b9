package services

import "encoding/json"

// Денежные поля ответов выводятся строкой с двумя знаками после запятой:
// 150 становится "150.00", в том же формате, в каком суммы принимаются.

func (r OperationResult) MarshalJSON() ([]byte, error) {
	type plain OperationResult
	return json.Marshal(struct {
		plain
		Balance string `json:"balance"`
	}{plain(r), r.Balance.StringFixed(2)})
}

func (r TransferResult) MarshalJSON() ([]byte, error) {
	type plain TransferResult
	return json.Marshal(struct {
		plain
		Amount  string `json:"amount"`
		Balance string `json:"balance"`
	}{plain(r), r.Amount.StringFixed(2), r.Balance.StringFixed(2)})
}

func (r ProvisionResult) MarshalJSON() ([]byte, error) {
	type plain ProvisionResult
	return json.Marshal(struct {
		plain
		Balance string `json:"balance"`
	}{plain(r), r.Balance.StringFixed(2)})
}

func (c ClientSummary) MarshalJSON() ([]byte, error) {
	type plain ClientSummary
	return json.Marshal(struct {
		plain
		Balance string `json:"balance"`
	}{plain(c), c.Balance.StringFixed(2)})
}

func (l ClientList) MarshalJSON() ([]byte, error) {
	type plain ClientList
	return json.Marshal(struct {
		plain
		TotalBalance   string `json:"total_balance"`
		AverageBalance string `json:"average_balance"`
	}{plain(l), l.TotalBalance.StringFixed(2), l.AverageBalance.StringFixed(2)})
}

func (o Overview) MarshalJSON() ([]byte, error) {
	type plain Overview
	return json.Marshal(struct {
		plain
		Balance string `json:"balance"`
	}{plain(o), o.Balance.StringFixed(2)})
}
