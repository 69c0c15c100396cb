package convo

import (
	"fmt"
	"strings"
)

// Reply templates. Hinglish on purpose: the audience is small Indian
// chemist shops chatting in code-mixed Hindi/English.

func helpReply() string {
	return "Main ye kar sakta hoon:\n" +
		"- Stock check: 'Paracetamol hai?'\n" +
		"- Order: '10 Dolo 650'\n" +
		"- Symptom search: 'bukhar ka medicine'\n" +
		"- Cancel: 'cancel'"
}

func greetReply() string {
	return "Namaste! Stock check, order ya symptom search - kya chahiye?\nExample: 'Paracetamol hai?' ya '10 Dolo'"
}

func cancelReply() string {
	return "Theek hai, cancel kar diya. Aur kya chahiye?"
}

func unknownReply() string {
	return "Samajh nahi aaya. Try karo:\n- 'Paracetamol hai?' (stock)\n- '10 Dolo' (order)\n- 'bukhar' (symptom)\n- 'help'"
}

func askProductReply() string {
	return "Kaun si medicine chahiye? Example: 'Paracetamol', 'Dolo 650'"
}

func askQuantityReply(product string) string {
	return fmt.Sprintf("%s ki kitni quantity chahiye? Example: '10', 'ek', 'twenty'", product)
}

func reAskQuantityReply(product string) string {
	return fmt.Sprintf("Quantity number mein batao (example: '10'). %s ki kitni chahiye?", product)
}

func askCustomerReply() string {
	return "Kiske naam pe banau? Naam batao, ya 'confirm' bolo walk-in ke liye."
}

func stockReply(p Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nStock: %.0f units\nPrice: Rs%.2f per unit\n", p.Name, p.Stock, p.UnitPrice)
	if p.RequiresPrescription {
		b.WriteString("Prescription required\n")
	}
	if p.Stock > 0 {
		b.WriteString("\nOrder karna hai? Quantity batao (e.g., '10')")
	} else {
		b.WriteString("\nAbhi out of stock hai")
	}
	return b.String()
}

func priceReply(p Product) string {
	return fmt.Sprintf("%s: Rs%.2f per unit (stock: %.0f)", p.Name, p.UnitPrice, p.Stock)
}

func outOfStockReply(p Product, alternatives []Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s abhi out of stock hai.", p.Name)
	if len(alternatives) > 0 {
		b.WriteString("\nYe options available hain:\n")
		b.WriteString(formatProductList(alternatives))
	}
	return b.String()
}

func notFoundReply(mention string) string {
	return fmt.Sprintf("'%s' stock mein nahi mila.\nMedicine ka exact naam try karo, ya symptom batao (e.g., 'bukhar').", mention)
}

func ambiguousReply(mention string, options []Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s' ke liye ye options hain:\n", mention)
	for i, m := range options {
		fmt.Fprintf(&b, "%d. %s (Rs%.2f)\n", i+1, m.Product.Name, m.Product.UnitPrice)
	}
	b.WriteString("\nExact naam se phir pucho")
	return b.String()
}

func symptomReply(symptom string, results []Product) string {
	if len(results) == 0 {
		return fmt.Sprintf("'%s' ke liye specific medicine nahi mila. Medicine ke naam se direct pucho.", symptom)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "'%s' ke liye ye medicines hain:\n", symptom)
	b.WriteString(formatProductList(results))
	b.WriteString("\nMedicine ka naam bolke order kar sakte ho")
	return b.String()
}

func confirmationReply(seller string, lc LockedContext, buyer string) string {
	p := lc.Product
	amount := p.UnitPrice * lc.Quantity
	var b strings.Builder
	b.WriteString("Order confirmation\n")
	if p.RequiresPrescription {
		b.WriteString("PRESCRIPTION REQUIRED - owner verify karega\n")
	}
	fmt.Fprintf(&b, "Seller: %s\nBuyer: %s\nProduct: %s\nQuantity: %.0f units\n", seller, buyer, p.Name, lc.Quantity)
	fmt.Fprintf(&b, "Amount: Rs%.2f x %.0f = Rs%.2f\n\n", p.UnitPrice, lc.Quantity, amount)
	b.WriteString("'confirm' = invoice draft banega\n'cancel' = stop\nCustomer badalna hai? Naam likho")
	return b.String()
}

func draftCreatedReply(d *Draft) string {
	rx := ""
	if d.RequiresPrescription {
		rx = "\nPrescription verify karna zaroori hai approval se pehle"
	}
	return fmt.Sprintf("Invoice draft ban gaya!%s\n\nBuyer: %s\nProduct: %s\nQuantity: %.0f\nAmount: Rs%.2f\n\nOwner dashboard se approve karo to finalize.",
		rx, d.Buyer, d.ProductName, d.Quantity, d.Amount)
}

func internalErrorReply() string {
	return "Kuch gadbad ho gayi, order phir se shuru karo."
}

func formatProductList(products []Product) string {
	var b strings.Builder
	for i, p := range products {
		rx := "OTC"
		if p.RequiresPrescription {
			rx = "Rx required"
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n   %s | Rs%.2f | Stock: %.0f\n", i+1, p.Name, rx, diseaseLabel(p), p.UnitPrice, p.Stock)
	}
	return b.String()
}

func diseaseLabel(p Product) string {
	if strings.TrimSpace(p.Disease) == "" {
		return "General use"
	}
	return p.Disease
}
