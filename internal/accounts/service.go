package accounts

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
)

var accountCodeRe = regexp.MustCompile(`^[0-9]{4}$`)

// Service defines operations on the chart of accounts.
type Service interface {
	Create(ctx context.Context, input CreateAccountInput) (*models.Account, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateAccountInput) (*models.Account, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByCode(ctx context.Context, code string) (*models.Account, error)
	List(ctx context.Context, filter ListFilter) ([]models.Account, error)
	Tree(ctx context.Context) ([]TreeNode, error)
}

// CreateAccountInput captures the fields a new account requires. NormalBalance
// defaults to the account type's normal side; contra accounts override it.
type CreateAccountInput struct {
	Code            string               `json:"code"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	Type            enums.AccountType    `json:"type"`
	NormalBalance   *enums.NormalBalance `json:"normal_balance,omitempty"`
	ParentAccountID *uuid.UUID           `json:"parent_account_id,omitempty"`
}

// UpdateAccountInput covers the mutable account fields. Code and type are
// fixed after creation.
type UpdateAccountInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TreeNode is one account with its nested children, ordered by code.
type TreeNode struct {
	Account  models.Account `json:"account"`
	Children []TreeNode     `json:"children"`
}

type service struct {
	repo Repository
}

// NewService wires an account service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("accounts repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateAccountInput) (*models.Account, error) {
	if input.Name == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "account name is required")
	}
	if !input.Type.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid account type %q", input.Type))
	}
	if err := validateCode(input.Code, input.Type); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByCode(ctx, input.Code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.CodeConflict, fmt.Sprintf("account code %s already exists", input.Code))
	}

	normal := input.Type.NormalBalance()
	if input.NormalBalance != nil {
		if !input.NormalBalance.IsValid() {
			return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid normal balance %q", *input.NormalBalance))
		}
		normal = *input.NormalBalance
	}

	if input.ParentAccountID != nil {
		parent, err := s.repo.FindByID(ctx, *input.ParentAccountID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, apperrors.New(apperrors.CodeValidation, "parent account does not exist")
		}
		if parent.Type != input.Type {
			return nil, apperrors.New(apperrors.CodeValidation, "parent account type must match child type")
		}
	}

	account := &models.Account{
		ID:              uuid.New(),
		Code:            input.Code,
		Name:            input.Name,
		Description:     input.Description,
		Type:            input.Type,
		NormalBalance:   normal,
		ParentAccountID: input.ParentAccountID,
		Status:          enums.AccountStatusActive,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateAccountInput) (*models.Account, error) {
	account, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		if *input.Name == "" {
			return nil, apperrors.New(apperrors.CodeValidation, "account name cannot be empty")
		}
		account.Name = *input.Name
	}
	if input.Description != nil {
		account.Description = *input.Description
	}
	if err := s.repo.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.IsSystemAccount {
		return nil, apperrors.New(apperrors.CodeStateConflict, "system accounts cannot be deactivated")
	}
	if account.Status == enums.AccountStatusInactive {
		return account, nil
	}
	hasChildren, err := s.repo.HasChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	if hasChildren {
		return nil, apperrors.New(apperrors.CodeStateConflict, "account with child accounts cannot be deactivated")
	}
	account.Status = enums.AccountStatusInactive
	if err := s.repo.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.mustFind(ctx, id)
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.Account, error) {
	account, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("account %s not found", code))
	}
	return account, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Account, error) {
	return s.repo.List(ctx, filter)
}

// Tree rebuilds the account hierarchy from the flat parent references.
// Accounts whose parent is missing are treated as roots rather than dropped.
func (s *service) Tree(ctx context.Context) ([]TreeNode, error) {
	all, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}

	children := make(map[uuid.UUID][]models.Account)
	byID := make(map[uuid.UUID]bool, len(all))
	for _, account := range all {
		byID[account.ID] = true
	}

	var roots []models.Account
	for _, account := range all {
		if account.ParentAccountID != nil && byID[*account.ParentAccountID] {
			children[*account.ParentAccountID] = append(children[*account.ParentAccountID], account)
			continue
		}
		roots = append(roots, account)
	}

	var build func(account models.Account) TreeNode
	build = func(account models.Account) TreeNode {
		node := TreeNode{Account: account}
		for _, child := range children[account.ID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}

	nodes := make([]TreeNode, 0, len(roots))
	for _, root := range roots {
		nodes = append(nodes, build(root))
	}
	return nodes, nil
}

func (s *service) mustFind(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "account id is required")
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "account not found")
	}
	return account, nil
}

func validateCode(code string, accountType enums.AccountType) error {
	if !accountCodeRe.MatchString(code) {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("account code %q must be 4 digits", code))
	}
	numeric, err := strconv.Atoi(code)
	if err != nil {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("account code %q must be numeric", code))
	}
	if !accountType.ContainsCode(numeric) {
		low, high, _ := accountType.CodeRange()
		return apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("account code %s is outside the %s range %d-%d", code, accountType, low, high))
	}
	return nil
}
