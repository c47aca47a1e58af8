package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chainscore/pkg/config"
	"chainscore/pkg/validate"
)

// Transaction 链上交易记录
type Transaction struct {
	TxHash      string    `json:"txHash"`
	BlockNumber int64     `json:"blockNumber"`
	Timestamp   time.Time `json:"-"`
	UnixTime    int64     `json:"timestamp"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ValueWei    string    `json:"valueWei"`
	Verified    bool      `json:"verified"`
}

// WalletActivity 地址活跃度概览
type WalletActivity struct {
	Address        string    `json:"address"`
	TxCount30d     int64     `json:"txCount30d"`
	ActiveDays30d  int       `json:"activeDays30d"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// GetTransaction 获取单笔交易并按链上记录规则校验：
// 交易哈希必须是32字节十六进制，区块号为正整数，
// 时间戳不得在未来也不得早于一年前，且记录必须带 verified 标记。
func (c *Client) GetTransaction(ctx context.Context, txHash string) (*Transaction, error) {
	var out Transaction
	err := c.fetchValidated(ctx, config.ServiceIndexer, "getTransaction",
		http.MethodGet, "/api/v1/tx/"+txHash, nil, &out, validate.DomainBlockchain)
	if err != nil {
		return nil, err
	}
	out.Timestamp = time.Unix(out.UnixTime, 0)
	return &out, nil
}

// GetTransactionHistory 获取地址最近的交易列表
func (c *Client) GetTransactionHistory(ctx context.Context, address string, limit int) ([]Transaction, error) {
	var out []Transaction
	path := fmt.Sprintf("/api/v1/address/%s/txs?limit=%d", address, limit)
	err := c.fetchValidated(ctx, config.ServiceIndexer, "getTransactionHistory",
		http.MethodGet, path, nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Timestamp = time.Unix(out[i].UnixTime, 0)
	}
	return out, nil
}

// GetWalletActivity 获取地址活跃度概览
func (c *Client) GetWalletActivity(ctx context.Context, address string) (*WalletActivity, error) {
	var out WalletActivity
	err := c.fetchValidated(ctx, config.ServiceIndexer, "getWalletActivity",
		http.MethodGet, "/api/v1/address/"+address+"/activity", nil, &out, validate.DomainGeneric)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
