// Package database opens the SQLite store and hosts the domain repositories.
//
// # Architecture
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── books/           # Book CRUD, trash queries and change emission
//	├── users/           # Accounts and API tokens
//	└── audit/           # Audit trail
//
// # Usage
//
//	db, err := database.NewDatabase("./storynest.db")
//
//	booksRepo := books.NewRepository(db.DB, hub)
//	usersRepo := users.NewRepository(db.DB)
//
// Each repository takes the *gorm.DB handle and nothing else it does not
// need; the books repository additionally takes an Emitter that receives a
// change event after every committed write.
package database
