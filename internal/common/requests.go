package common

import (
	"fmt"
	"os"
	"path/filepath"

	"crypto-payments-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type RequestConfig struct {
	PaymentId   string            `yaml:"payment_id"`
	UserId      string            `yaml:"user_id"`
	Amount      string            `yaml:"amount"`
	Currency    string            `yaml:"currency"`
	ToAddress   string            `yaml:"to_address"`
	ToUserId    string            `yaml:"to_user_id"`
	Description string            `yaml:"description"`
	Metadata    map[string]string `yaml:"metadata"`
}

type RequestsConfig struct {
	Payments []RequestConfig `yaml:"payments"`
}

func LoadBatchRequests(requestsFile string) ([]models.PaymentRequest, error) {
	var requestsPath string
	if filepath.IsAbs(requestsFile) {
		requestsPath = requestsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		requestsPath = filepath.Join(wd, requestsFile)
	}

	data, err := os.ReadFile(requestsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", requestsFile, err)
	}

	return ParseBatchRequests(data)
}

func ParseBatchRequests(data []byte) ([]models.PaymentRequest, error) {
	var config RequestsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse payment requests: %w", err)
	}

	requests := make([]models.PaymentRequest, 0, len(config.Payments))
	for i, p := range config.Payments {
		if p.UserId == "" {
			return nil, fmt.Errorf("payment at index %d missing user_id", i)
		}
		if p.Currency == "" {
			return nil, fmt.Errorf("payment at index %d missing currency", i)
		}
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("payment at index %d has invalid amount %q: %w", i, p.Amount, err)
		}

		requests = append(requests, models.PaymentRequest{
			PaymentId:   p.PaymentId,
			UserId:      p.UserId,
			Amount:      amount,
			Currency:    p.Currency,
			ToAddress:   p.ToAddress,
			ToUserId:    p.ToUserId,
			Description: p.Description,
			Metadata:    p.Metadata,
		})
	}

	return requests, nil
}
