package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/storefront/internal/models"
)

// StockError rejects a cart change that would exceed the product's stock.
type StockError struct {
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("only %d items left in stock", e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// EnsureCart returns the user's cart, creating it on first use.
func EnsureCart(tx *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := tx.Where("user_id = ?", userID).First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := models.Cart{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	var stored models.Cart
	if err := tx.Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// FindProduct loads a product or returns ErrProductNotFound.
func FindProduct(tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := tx.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// AddCartItem adds quantity of (product, size, color) to the cart. An existing
// line for the same tuple is incremented. The request is rejected as a whole
// when the resulting line quantity would exceed stock.
func AddCartItem(tx *gorm.DB, cartID uuid.UUID, product *models.Product, quantity int, size, color string) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !product.HasSize(size) {
		return nil, ErrInvalidSize
	}
	if !product.HasColor(color) {
		return nil, ErrInvalidColor
	}

	var item models.CartItem
	err := tx.Where("cart_id = ? AND product_id = ? AND size = ? AND color = ?",
		cartID, product.ID, size, color).First(&item).Error
	switch {
	case err == nil:
		if item.Quantity+quantity > product.Stock {
			return nil, &StockError{Available: product.Stock}
		}
		item.Quantity += quantity
		if err := tx.Model(&item).Update("quantity", item.Quantity).Error; err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if quantity > product.Stock {
			return nil, &StockError{Available: product.Stock}
		}
		item = models.CartItem{
			CartID:    cartID,
			ProductID: product.ID,
			Size:      size,
			Color:     color,
			Quantity:  quantity,
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	item.Product = product
	return &item, nil
}

// UpdateCartItem sets the quantity of one of the user's cart lines.
func UpdateCartItem(tx *gorm.DB, userID, itemID uuid.UUID, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	item, err := findUserCartItem(tx, userID, itemID)
	if err != nil {
		return nil, err
	}
	product, err := FindProduct(tx, item.ProductID)
	if err != nil {
		return nil, err
	}
	if quantity > product.Stock {
		return nil, &StockError{Available: product.Stock}
	}

	if err := tx.Model(item).Update("quantity", quantity).Error; err != nil {
		return nil, err
	}
	item.Quantity = quantity
	item.Product = product
	return item, nil
}

// RemoveCartItem deletes one of the user's cart lines.
func RemoveCartItem(tx *gorm.DB, userID, itemID uuid.UUID) error {
	item, err := findUserCartItem(tx, userID, itemID)
	if err != nil {
		return err
	}
	return tx.Delete(item).Error
}

func findUserCartItem(tx *gorm.DB, userID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := tx.Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.user_id = ?", itemID, userID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GuestCartItem is one line of a cart built before login.
type GuestCartItem struct {
	ClientID  string
	ProductID string
	Quantity  int
	Size      string
	Color     string
}

type MergeRejection struct {
	ClientID  string `json:"clientId"`
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

type MergeResult struct {
	Merged   int              `json:"merged"`
	Skipped  int              `json:"skipped"`
	Rejected []MergeRejection `json:"rejected"`
}

// MergeGuestCart replays guest lines into the user's cart in one transaction.
// Lines whose ClientID was merged before are skipped. Lines that fail
// validation are reported instead of aborting the merge.
func MergeGuestCart(db *gorm.DB, userID uuid.UUID, items []GuestCartItem) (*MergeResult, error) {
	result := &MergeResult{Rejected: []MergeRejection{}}

	err := db.Transaction(func(tx *gorm.DB) error {
		cart, err := EnsureCart(tx, userID)
		if err != nil {
			return err
		}

		for _, guest := range items {
			clientID := strings.TrimSpace(guest.ClientID)
			if clientID != "" {
				var seen int64
				if err := tx.Model(&models.CartMergeReceipt{}).
					Where("cart_id = ? AND client_item_id = ?", cart.ID, clientID).
					Count(&seen).Error; err != nil {
					return err
				}
				if seen > 0 {
					result.Skipped++
					continue
				}
			}

			reject := func(reason string) {
				result.Rejected = append(result.Rejected, MergeRejection{
					ClientID:  clientID,
					ProductID: guest.ProductID,
					Reason:    reason,
				})
			}

			productID, err := uuid.Parse(guest.ProductID)
			if err != nil {
				reject("invalid product id")
				continue
			}
			product, err := FindProduct(tx, productID)
			if errors.Is(err, ErrProductNotFound) {
				reject(err.Error())
				continue
			}
			if err != nil {
				return err
			}

			if _, err := AddCartItem(tx, cart.ID, product, guest.Quantity, guest.Size, guest.Color); err != nil {
				if isCartRuleError(err) {
					reject(err.Error())
					continue
				}
				return err
			}

			if clientID != "" {
				if err := tx.Create(&models.CartMergeReceipt{CartID: cart.ID, ClientItemID: clientID}).Error; err != nil {
					return err
				}
			}
			result.Merged++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isCartRuleError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidSize) ||
		errors.Is(err, ErrInvalidColor)
}
