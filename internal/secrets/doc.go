// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package secrets resolves values for environment keys that tool servers
require, such as BRAVE_API_KEY.

Values are looked up through a priority-ordered chain of backends:

	env      - the process environment (KEY or ALOU_SECRET_KEY)
	dotenv   - .env files listed in the configuration
	keychain - the OS keychain, service "alou"

When no backend has the key, Resolver.Resolve falls back to a placeholder
value so the server can at least be launched.

	resolver := secrets.NewResolver(
	    secrets.NewEnvBackend(),
	    secrets.NewDotenvBackend(".env"),
	    secrets.NewKeychainBackend(),
	)
	value, source := resolver.Resolve(ctx, "BRAVE_API_KEY")
*/
package secrets
